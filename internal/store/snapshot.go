// Package store holds the immutable procedure arena and its indexes.
//
// A Snapshot is built once by the Builder and never mutated afterward;
// readers share it without locking. Reload builds a whole new Snapshot
// and swaps the Container pointer, so in-flight queries finish on the
// old view and never observe a partially-built store.
package store

import (
	"time"

	"github.com/quietbeacon/epi/internal/errors"
	"github.com/quietbeacon/epi/internal/types"
)

// Snapshot is one fully-built, immutable view of the manual set.
// All candidate lists are stored in authored order so every consumer
// inherits deterministic ordering without re-sorting.
type Snapshot struct {
	procedures map[types.ProcedureID]*types.Procedure
	order      []types.ProcedureID
	position   map[types.ProcedureID]int
	children   map[types.ProcedureID][]types.ProcedureID
	categories []types.ProcedureID

	// keyword index: normalized token -> candidate ids, authored order
	keywords map[string][]types.ProcedureID

	// exact lookup: case-folded trimmed title -> ids, authored order
	titles map[string][]types.ProcedureID

	// fuzzy vocabulary: raw lower-cased index words in first-seen order,
	// and the ids each word came from
	vocabulary []string
	words      map[string][]types.ProcedureID

	generation  uint64
	fingerprint uint64
	builtAt     time.Time
	sources     int
	warnings    []types.Warning
}

// emptySnapshot backs a Container before the first load so readers
// never see a nil view.
func emptySnapshot() *Snapshot {
	return &Snapshot{
		procedures: make(map[types.ProcedureID]*types.Procedure),
		position:   make(map[types.ProcedureID]int),
		children:   make(map[types.ProcedureID][]types.ProcedureID),
		keywords:   make(map[string][]types.ProcedureID),
		titles:     make(map[string][]types.ProcedureID),
		words:      make(map[string][]types.ProcedureID),
		builtAt:    time.Now(),
	}
}

// Get returns the procedure for id, or NotFound.
func (s *Snapshot) Get(id types.ProcedureID) (*types.Procedure, error) {
	proc, ok := s.procedures[id]
	if !ok {
		return nil, errors.NewNotFound(id)
	}
	return proc, nil
}

// Children returns the direct children of id in authored order. A
// procedure with no children yields an empty slice, not an error;
// NotFound is reserved for unknown ids.
func (s *Snapshot) Children(id types.ProcedureID) ([]*types.Procedure, error) {
	if _, ok := s.procedures[id]; !ok {
		return nil, errors.NewNotFound(id)
	}
	ids := s.children[id]
	out := make([]*types.Procedure, 0, len(ids))
	for _, cid := range ids {
		out = append(out, s.procedures[cid])
	}
	return out, nil
}

// All returns every procedure in authored order. Each call allocates a
// fresh slice, so callers get a restartable traversal rather than a
// shared cursor.
func (s *Snapshot) All() []*types.Procedure {
	out := make([]*types.Procedure, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.procedures[id])
	}
	return out
}

// Categories returns the top-level procedures in declaration order.
func (s *Snapshot) Categories() []*types.Procedure {
	out := make([]*types.Procedure, 0, len(s.categories))
	for _, id := range s.categories {
		out = append(out, s.procedures[id])
	}
	return out
}

// HasID reports whether id is present.
func (s *Snapshot) HasID(id types.ProcedureID) bool {
	_, ok := s.procedures[id]
	return ok
}

// PositionOf returns the authored position of id, used as the final
// deterministic tie-break. Unknown ids sort last.
func (s *Snapshot) PositionOf(id types.ProcedureID) int {
	if pos, ok := s.position[id]; ok {
		return pos
	}
	return len(s.order)
}

// TitleMatches returns the ids whose case-folded title equals the
// normalized query, in authored order.
func (s *Snapshot) TitleMatches(normalized string) []types.ProcedureID {
	return s.titles[normalized]
}

// KeywordCandidates returns the ids indexed under a normalized token,
// in authored order.
func (s *Snapshot) KeywordCandidates(token string) []types.ProcedureID {
	return s.keywords[token]
}

// Vocabulary returns the raw index words available for fuzzy matching,
// in first-seen order.
func (s *Snapshot) Vocabulary() []string {
	return s.vocabulary
}

// WordProcedures returns the ids that contributed a raw vocabulary word.
func (s *Snapshot) WordProcedures(word string) []types.ProcedureID {
	return s.words[word]
}

// Count returns the number of procedures.
func (s *Snapshot) Count() int {
	return len(s.order)
}

// KeywordCount returns the number of distinct index tokens.
func (s *Snapshot) KeywordCount() int {
	return len(s.keywords)
}

// Generation returns the monotonic publish counter, 0 before any load.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// Fingerprint returns the content hash of the sources this snapshot was
// built from.
func (s *Snapshot) Fingerprint() uint64 {
	return s.fingerprint
}

// BuiltAt returns when the snapshot finished building.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// SourceCount returns how many source documents were merged.
func (s *Snapshot) SourceCount() int {
	return s.sources
}

// Warnings returns review flags collected while parsing the sources.
func (s *Snapshot) Warnings() []types.Warning {
	return s.warnings
}
