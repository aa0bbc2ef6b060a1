package types

import "strings"

// ProcedureID is the stable identifier of a procedure, derived from its
// heading path: each heading is slugged, segments are joined with '.'.
// Example: "astronaut-medical-support.hypoxia-response".
type ProcedureID string

// String returns the id as a plain string.
func (id ProcedureID) String() string { return string(id) }

// IsZero reports whether the id is empty.
func (id ProcedureID) IsZero() bool { return id == "" }

// Step is one ordered action within a procedure. Seq is 1-based and
// unique within its procedure; Text is opaque to the engine.
type Step struct {
	Seq  int    `json:"seq"`
	Text string `json:"text"`
}

// Procedure is one emergency procedure record. Records are immutable
// after load; callers must treat all fields as read-only.
type Procedure struct {
	ID       ProcedureID `json:"id"`
	Title    string      `json:"title"`
	ParentID ProcedureID `json:"parent_id,omitempty"`
	Severity Severity    `json:"severity,omitempty"`

	// Steps preserve authored order exactly. Notes are advisory; their
	// order carries no meaning but is preserved for stable output.
	Steps []Step   `json:"steps,omitempty"`
	Notes []string `json:"notes,omitempty"`

	// Keywords are author-declared lookup aliases ("o2", "can't breathe").
	// Questions are follow-up prompts surfaced with results; both are
	// opaque to everything except the keyword index.
	Keywords  []string `json:"keywords,omitempty"`
	Questions []string `json:"questions,omitempty"`
}

// HasContent reports whether the procedure carries any steps or notes.
// A procedure with no content and no children is an invalid empty leaf.
func (p *Procedure) HasContent() bool {
	return len(p.Steps) > 0 || len(p.Notes) > 0
}

// Document is the parsed form of one manual source, in authored order
// with parents preceding their children. Validation and merging happen
// later; a Document may still contain records that fail them.
type Document struct {
	Path       string
	Procedures []*Procedure
	Warnings   []Warning

	// Lines maps each procedure to the source line of its heading, for
	// error context. Codecs without line information leave entries at 0.
	Lines map[ProcedureID]int
}

// Warning flags manual content that loaded but deserves review, such as
// a heading whose body is prose with no recognizable steps or notes.
type Warning struct {
	Path    string `json:"path,omitempty"`
	Line    int    `json:"line,omitempty"`
	Heading string `json:"heading,omitempty"`
	Message string `json:"message"`
}

// Slug normalizes one heading into an id segment: lower-cased, with
// every run of non-alphanumeric characters collapsed to a single '-'.
func Slug(heading string) string {
	var b strings.Builder
	b.Grow(len(heading))
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(heading)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	return b.String()
}

// DeriveID builds a ProcedureID from a heading and the enclosing
// procedure's id. Root headings get their bare slug.
func DeriveID(parent ProcedureID, heading string) ProcedureID {
	s := Slug(heading)
	if parent.IsZero() {
		return ProcedureID(s)
	}
	return ProcedureID(string(parent) + "." + s)
}
