package indexing

import (
	"encoding/json"
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/quietbeacon/epi/internal/errors"
	"github.com/quietbeacon/epi/internal/types"
)

// datasetFile is the top-level shape of a structured manual document.
// JSON, YAML and TOML sources all decode into it.
type datasetFile struct {
	Procedures []datasetProcedure `json:"procedures" yaml:"procedures" toml:"procedures"`
}

// datasetProcedure mirrors one authored procedure record. ID is an
// optional leaf segment override; when empty the id is derived from
// the title exactly like a heading slug. Children nest recursively.
type datasetProcedure struct {
	ID        string             `json:"id" yaml:"id" toml:"id"`
	Title     string             `json:"title" yaml:"title" toml:"title"`
	Severity  string             `json:"severity" yaml:"severity" toml:"severity"`
	Keywords  []string           `json:"keywords" yaml:"keywords" toml:"keywords"`
	Questions []string           `json:"questions" yaml:"questions" toml:"questions"`
	Steps     []string           `json:"steps" yaml:"steps" toml:"steps"`
	Notes     []string           `json:"notes" yaml:"notes" toml:"notes"`
	Children  []datasetProcedure `json:"children" yaml:"children" toml:"children"`
}

type datasetFormat uint8

const (
	formatJSON datasetFormat = iota
	formatYAML
	formatTOML
)

// datasetCodec decodes structured procedure documents. One codec value
// handles one serialization format.
type datasetCodec struct {
	format datasetFormat
}

func (c datasetCodec) Name() string {
	switch c.format {
	case formatYAML:
		return "dataset-yaml"
	case formatTOML:
		return "dataset-toml"
	default:
		return "dataset-json"
	}
}

func (c datasetCodec) Decode(path string, data []byte) (*types.Document, error) {
	var file datasetFile
	var err error
	switch c.format {
	case formatYAML:
		err = yaml.Unmarshal(data, &file)
	case formatTOML:
		err = toml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, errors.NewSourceError("decode", path, err)
	}

	doc := &types.Document{
		Path:  path,
		Lines: make(map[types.ProcedureID]int),
	}
	for i := range file.Procedures {
		if err := flattenProcedure(doc, "", &file.Procedures[i]); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// flattenProcedure appends one record and then its children, parent
// first, so document order matches the authored nesting.
func flattenProcedure(doc *types.Document, parent types.ProcedureID, src *datasetProcedure) error {
	title := strings.TrimSpace(src.Title)
	if title == "" {
		return errors.NewMalformedStructure(parent, "", "dataset procedure without a title").
			WithSource(doc.Path, 0)
	}

	id := datasetID(doc, parent, src, title)
	if id.IsZero() {
		doc.Warnings = append(doc.Warnings, types.Warning{
			Path:    doc.Path,
			Heading: title,
			Message: "title normalizes to an empty id and was skipped",
		})
		return nil
	}
	if _, exists := doc.Lines[id]; exists {
		return errors.NewDuplicateIdentifier(id, title).WithSource(doc.Path, 0)
	}

	proc := &types.Procedure{
		ID:       id,
		Title:    title,
		ParentID: parent,
	}

	if sev := strings.TrimSpace(src.Severity); sev != "" {
		parsed, ok := types.ParseSeverity(sev)
		if !ok {
			doc.Warnings = append(doc.Warnings, types.Warning{
				Path:    doc.Path,
				Heading: title,
				Message: fmt.Sprintf("unknown severity %q", sev),
			})
		} else {
			proc.Severity = parsed
		}
	}

	for _, kw := range src.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			proc.Keywords = append(proc.Keywords, kw)
		}
	}
	for _, q := range src.Questions {
		if q = strings.TrimSpace(q); q != "" {
			proc.Questions = append(proc.Questions, q)
		}
	}
	for _, note := range src.Notes {
		if note = strings.TrimSpace(note); note != "" {
			proc.Notes = append(proc.Notes, note)
		}
	}
	for _, text := range src.Steps {
		text = strings.TrimSpace(text)
		if text == "" {
			doc.Warnings = append(doc.Warnings, types.Warning{
				Path:    doc.Path,
				Heading: title,
				Message: "empty step dropped",
			})
			continue
		}
		proc.Steps = append(proc.Steps, types.Step{Seq: len(proc.Steps) + 1, Text: text})
	}

	doc.Procedures = append(doc.Procedures, proc)
	doc.Lines[id] = 0

	for i := range src.Children {
		if err := flattenProcedure(doc, id, &src.Children[i]); err != nil {
			return err
		}
	}
	return nil
}

// datasetID resolves the record id. An authored ID field replaces the
// leaf segment only; the parent path still prefixes it so the tree
// stays consistent. An ID that normalizes to nothing falls back to the
// title with a warning.
func datasetID(doc *types.Document, parent types.ProcedureID, src *datasetProcedure, title string) types.ProcedureID {
	if authored := strings.TrimSpace(src.ID); authored != "" {
		leaf := types.Slug(authored)
		if leaf == "" {
			doc.Warnings = append(doc.Warnings, types.Warning{
				Path:    doc.Path,
				Heading: title,
				Message: fmt.Sprintf("id %q normalizes to nothing, derived from title instead", authored),
			})
		} else {
			if parent.IsZero() {
				return types.ProcedureID(leaf)
			}
			return types.ProcedureID(string(parent) + "." + leaf)
		}
	}
	return types.DeriveID(parent, title)
}
