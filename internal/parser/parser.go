// Package parser converts structured manual text into procedure records.
//
// The input grammar is line-oriented: '#' headings carry the category
// hierarchy, numbered lines become ordered steps, bulleted lines become
// advisory notes. Severity/Keywords annotations and Questions blocks
// attach metadata to the enclosing heading. The parser is pure syntax;
// semantic validation (empty leaves, duplicate ids across files) belongs
// to the loader.
package parser

import (
	"fmt"
	"strings"

	"github.com/quietbeacon/epi/internal/errors"
	"github.com/quietbeacon/epi/internal/types"
)

// maxHeadingDepth bounds the '#' nesting the grammar accepts.
const maxHeadingDepth = 6

type lineKind uint8

const (
	lineBlank lineKind = iota
	lineHeading
	lineStep
	lineNote
	lineAnnotation
	lineProse
)

// ManualParser parses structured manual text into a Document. It is
// stateless between calls; one instance may be shared across goroutines.
type ManualParser struct{}

// NewManualParser creates a manual text parser
func NewManualParser() *ManualParser {
	return &ManualParser{}
}

// frame is one open heading on the nesting stack.
type frame struct {
	proc  *types.Procedure
	level int
}

// parseState carries everything mutable for a single Parse call.
type parseState struct {
	path  string
	doc   *types.Document
	stack []frame

	// questions mode: bullets append to Questions instead of Notes.
	// Any non-bullet line closes the block.
	questionsOpen bool

	// first prose line per heading, for the ambiguity warning
	proseSeen map[types.ProcedureID]int

	preambleWarned bool
}

// Parse converts one manual source into a Document. path is used only
// for warning and error context. A duplicate heading id within the
// source aborts the parse with DuplicateIdentifier.
func (p *ManualParser) Parse(path string, content []byte) (*types.Document, error) {
	st := &parseState{
		path: path,
		doc: &types.Document{
			Path:  path,
			Lines: make(map[types.ProcedureID]int),
		},
		proseSeen: make(map[types.ProcedureID]int),
	}

	lines := strings.Split(string(content), "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if err := p.consumeLine(st, i+1, line); err != nil {
			return nil, err
		}
	}

	p.flagAmbiguousHeadings(st)
	return st.doc, nil
}

// consumeLine classifies one trimmed line and applies it to the state.
func (p *ManualParser) consumeLine(st *parseState, lineNo int, line string) error {
	kind, payload := classify(line)

	if kind != lineNote {
		st.questionsOpen = false
	}

	switch kind {
	case lineBlank:
		return nil
	case lineHeading:
		return p.openHeading(st, lineNo, line)
	case lineStep:
		p.appendStep(st, lineNo, payload)
	case lineNote:
		p.appendNote(st, lineNo, payload)
	case lineAnnotation:
		p.applyAnnotation(st, lineNo, line)
	default:
		p.recordProse(st, lineNo)
	}
	return nil
}

// classify maps a trimmed line to its kind. payload carries the content
// after the structural marker where one exists.
func classify(trimmed string) (lineKind, string) {
	if trimmed == "" {
		return lineBlank, ""
	}
	if _, title, ok := splitHeading(trimmed); ok {
		return lineHeading, title
	}
	if text, ok := splitStep(trimmed); ok {
		return lineStep, text
	}
	if text, ok := splitBullet(trimmed); ok {
		return lineNote, text
	}
	if isAnnotation(trimmed) {
		return lineAnnotation, trimmed
	}
	return lineProse, trimmed
}

// splitHeading parses "## Title" into level and title.
func splitHeading(trimmed string) (int, string, bool) {
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > maxHeadingDepth {
		return 0, "", false
	}
	rest := trimmed[level:]
	if rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return 0, "", false
	}
	title := strings.TrimSpace(rest)
	if title == "" {
		return 0, "", false
	}
	return level, title, true
}

// splitStep parses "3. text" or "3) text" into the step text.
func splitStep(trimmed string) (string, bool) {
	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(trimmed) {
		return "", false
	}
	if trimmed[i] != '.' && trimmed[i] != ')' {
		return "", false
	}
	text := strings.TrimSpace(trimmed[i+1:])
	if text == "" {
		return "", false
	}
	return text, true
}

// splitBullet parses "- text" or "* text" into the note text.
func splitBullet(trimmed string) (string, bool) {
	if len(trimmed) < 3 {
		return "", false
	}
	if trimmed[0] != '-' && trimmed[0] != '*' {
		return "", false
	}
	if trimmed[1] != ' ' && trimmed[1] != '\t' {
		return "", false
	}
	text := strings.TrimSpace(trimmed[2:])
	if text == "" {
		return "", false
	}
	return text, true
}

// isAnnotation reports whether the line is a recognized "Key:" line.
// Unknown keys deliberately fall through to prose so authored content
// is flagged rather than silently absorbed.
func isAnnotation(trimmed string) bool {
	key, _, ok := strings.Cut(trimmed, ":")
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "severity", "keywords", "questions":
		return true
	}
	return false
}

// openHeading closes frames at or below the new level, derives the id
// from the heading path, and pushes the new procedure.
func (p *ManualParser) openHeading(st *parseState, lineNo int, raw string) error {
	level, title, _ := splitHeading(raw)

	for len(st.stack) > 0 && st.stack[len(st.stack)-1].level >= level {
		st.stack = st.stack[:len(st.stack)-1]
	}

	var parentID types.ProcedureID
	if len(st.stack) > 0 {
		parentID = st.stack[len(st.stack)-1].proc.ID
	}

	id := types.DeriveID(parentID, title)
	if id.IsZero() {
		st.doc.Warnings = append(st.doc.Warnings, types.Warning{
			Path:    st.path,
			Line:    lineNo,
			Heading: title,
			Message: "heading normalizes to an empty id and was skipped",
		})
		return nil
	}

	if _, exists := st.doc.Lines[id]; exists {
		return errors.NewDuplicateIdentifier(id, title).WithSource(st.path, lineNo)
	}

	proc := &types.Procedure{
		ID:       id,
		Title:    title,
		ParentID: parentID,
	}
	st.doc.Procedures = append(st.doc.Procedures, proc)
	st.doc.Lines[id] = lineNo
	st.stack = append(st.stack, frame{proc: proc, level: level})
	return nil
}

// appendStep adds an ordered step to the open heading. The authored
// list order defines the sequence; literal numbering is not trusted.
func (p *ManualParser) appendStep(st *parseState, lineNo int, text string) {
	proc := p.current(st)
	if proc == nil {
		p.warnPreamble(st, lineNo)
		return
	}
	proc.Steps = append(proc.Steps, types.Step{
		Seq:  len(proc.Steps) + 1,
		Text: text,
	})
}

// appendNote adds a note, or a follow-up question when a Questions
// block is open.
func (p *ManualParser) appendNote(st *parseState, lineNo int, text string) {
	proc := p.current(st)
	if proc == nil {
		p.warnPreamble(st, lineNo)
		return
	}
	if st.questionsOpen {
		proc.Questions = append(proc.Questions, text)
		return
	}
	proc.Notes = append(proc.Notes, text)
}

// applyAnnotation handles Severity/Keywords lines and opens Questions
// blocks.
func (p *ManualParser) applyAnnotation(st *parseState, lineNo int, trimmed string) {
	proc := p.current(st)
	if proc == nil {
		p.warnPreamble(st, lineNo)
		return
	}

	key, value, _ := strings.Cut(trimmed, ":")
	value = strings.TrimSpace(value)

	switch strings.ToLower(strings.TrimSpace(key)) {
	case "severity":
		sev, ok := types.ParseSeverity(value)
		if !ok {
			st.doc.Warnings = append(st.doc.Warnings, types.Warning{
				Path:    st.path,
				Line:    lineNo,
				Heading: proc.Title,
				Message: fmt.Sprintf("unknown severity %q", value),
			})
			return
		}
		proc.Severity = sev

	case "keywords":
		for _, kw := range strings.Split(value, ",") {
			kw = strings.TrimSpace(kw)
			if kw != "" {
				proc.Keywords = append(proc.Keywords, kw)
			}
		}

	case "questions":
		st.questionsOpen = true
	}
}

// recordProse remembers the first unclassified content line under the
// open heading so it can be flagged once the document is fully parsed.
func (p *ManualParser) recordProse(st *parseState, lineNo int) {
	proc := p.current(st)
	if proc == nil {
		p.warnPreamble(st, lineNo)
		return
	}
	if _, seen := st.proseSeen[proc.ID]; !seen {
		st.proseSeen[proc.ID] = lineNo
	}
}

// flagAmbiguousHeadings warns about headings whose body was prose with
// no recognizable steps or notes, leaving the call on whether that is a
// zero-step procedure to a human instead of guessing.
func (p *ManualParser) flagAmbiguousHeadings(st *parseState) {
	for _, proc := range st.doc.Procedures {
		line, hadProse := st.proseSeen[proc.ID]
		if !hadProse || proc.HasContent() {
			continue
		}
		st.doc.Warnings = append(st.doc.Warnings, types.Warning{
			Path:    st.path,
			Line:    line,
			Heading: proc.Title,
			Message: "content is neither a numbered nor a bulleted list",
		})
	}
}

// current returns the innermost open procedure, or nil before the first
// heading.
func (p *ManualParser) current(st *parseState) *types.Procedure {
	if len(st.stack) == 0 {
		return nil
	}
	return st.stack[len(st.stack)-1].proc
}

// warnPreamble reports content before the first heading, once per file.
func (p *ManualParser) warnPreamble(st *parseState, lineNo int) {
	if st.preambleWarned {
		return
	}
	st.preambleWarned = true
	st.doc.Warnings = append(st.doc.Warnings, types.Warning{
		Path:    st.path,
		Line:    lineNo,
		Message: "content before the first heading is ignored",
	})
}
