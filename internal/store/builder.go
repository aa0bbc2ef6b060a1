package store

import (
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/quietbeacon/epi/internal/errors"
	"github.com/quietbeacon/epi/internal/semantic"
	"github.com/quietbeacon/epi/internal/types"
)

// Builder accumulates parsed documents and produces one validated
// Snapshot. Documents merge in the order they are added; within a
// document, authored order is preserved. Builders are single-use.
type Builder struct {
	tokenizer *semantic.Tokenizer
	snap      *Snapshot
	digest    *xxhash.Digest

	// heading line positions for error context, carried from documents
	lines map[types.ProcedureID]position
}

type position struct {
	path string
	line int
}

// NewBuilder creates a builder using the given tokenizer for the
// keyword index. The same tokenizer configuration must be used at
// query time for matching to stay symmetric.
func NewBuilder(tokenizer *semantic.Tokenizer) *Builder {
	return &Builder{
		tokenizer: tokenizer,
		snap:      emptySnapshot(),
		digest:    xxhash.New(),
		lines:     make(map[types.ProcedureID]position),
	}
}

// Add merges one parsed document. raw is the source content and feeds
// the snapshot fingerprint; it may be nil for synthetic documents.
// A duplicate id across documents aborts the build.
func (b *Builder) Add(doc *types.Document, raw []byte) error {
	_, _ = b.digest.WriteString(doc.Path)
	if raw != nil {
		_, _ = b.digest.Write(raw)
	}

	for _, proc := range doc.Procedures {
		if _, exists := b.snap.procedures[proc.ID]; exists {
			err := errors.NewDuplicateIdentifier(proc.ID, proc.Title)
			if pos, ok := b.positionOf(doc, proc.ID); ok {
				return err.WithSource(pos.path, pos.line)
			}
			return err
		}

		// Parents must appear before their children; this single check
		// also rules out cycles and dangling references.
		if !proc.ParentID.IsZero() {
			if _, ok := b.snap.procedures[proc.ParentID]; !ok {
				err := errors.NewMalformedStructure(proc.ID, proc.Title,
					"parent "+string(proc.ParentID)+" does not precede it")
				if pos, ok := b.positionOf(doc, proc.ID); ok {
					return err.WithSource(pos.path, pos.line)
				}
				return err
			}
			b.snap.children[proc.ParentID] = append(b.snap.children[proc.ParentID], proc.ID)
		} else {
			b.snap.categories = append(b.snap.categories, proc.ID)
		}

		b.snap.procedures[proc.ID] = proc
		b.snap.position[proc.ID] = len(b.snap.order)
		b.snap.order = append(b.snap.order, proc.ID)

		if line, ok := doc.Lines[proc.ID]; ok {
			b.lines[proc.ID] = position{path: doc.Path, line: line}
		}
	}

	b.snap.warnings = append(b.snap.warnings, doc.Warnings...)
	b.snap.sources++
	return nil
}

// Warn records a source-level warning that is not tied to any parsed
// document, such as a file skipped before parsing.
func (b *Builder) Warn(w types.Warning) {
	b.snap.warnings = append(b.snap.warnings, w)
}

// positionOf resolves the best source position for an id, preferring
// the document currently being merged.
func (b *Builder) positionOf(doc *types.Document, id types.ProcedureID) (position, bool) {
	if line, ok := doc.Lines[id]; ok {
		return position{path: doc.Path, line: line}, true
	}
	pos, ok := b.lines[id]
	return pos, ok
}

// Build validates the merged set, derives the indexes and returns the
// finished snapshot. The builder must not be reused afterward.
func (b *Builder) Build() (*Snapshot, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	b.buildIndexes()

	b.snap.fingerprint = b.digest.Sum64()
	b.snap.builtAt = time.Now()
	return b.snap, nil
}

// validate rejects empty leaves: a procedure with no steps, no notes
// and no children has nothing to guide a crew with.
func (b *Builder) validate() error {
	for _, id := range b.snap.order {
		proc := b.snap.procedures[id]
		if proc.HasContent() || len(b.snap.children[id]) > 0 {
			continue
		}
		err := errors.NewMalformedProcedure(id, proc.Title)
		if pos, ok := b.lines[id]; ok {
			return err.WithSource(pos.path, pos.line)
		}
		return err
	}
	return nil
}

// buildIndexes derives the exact-title map, the stemmed keyword index
// and the raw fuzzy vocabulary in one authored-order pass.
func (b *Builder) buildIndexes() {
	for _, id := range b.snap.order {
		proc := b.snap.procedures[id]

		normTitle := strings.ToLower(strings.TrimSpace(proc.Title))
		b.snap.titles[normTitle] = append(b.snap.titles[normTitle], id)

		terms := append([]string{proc.Title}, proc.Keywords...)
		for _, term := range terms {
			for _, token := range b.tokenizer.Tokenize(term) {
				b.addKeyword(token, id)
			}
			for _, word := range b.tokenizer.Words(term) {
				b.addWord(word, id)
			}
		}
	}
}

// addKeyword indexes one token, keeping candidate lists deduplicated
// and in authored order.
func (b *Builder) addKeyword(token string, id types.ProcedureID) {
	ids := b.snap.keywords[token]
	for _, existing := range ids {
		if existing == id {
			return
		}
	}
	b.snap.keywords[token] = append(ids, id)
}

// addWord records a raw word for the fuzzy vocabulary.
func (b *Builder) addWord(word string, id types.ProcedureID) {
	ids, seen := b.snap.words[word]
	if !seen {
		b.snap.vocabulary = append(b.snap.vocabulary, word)
	}
	for _, existing := range ids {
		if existing == id {
			return
		}
	}
	b.snap.words[word] = append(ids, id)
}
