// Package search resolves free-form emergency descriptors to ranked
// procedure candidates.
//
// Resolution runs in strict priority layers: exact title or id match,
// then the stemmed keyword index, then fuzzy vocabulary matching as a
// typo net. A hit in a layer short-circuits the layers below it, and
// every ordering falls back to the store's authored order, never map
// iteration, so the same query against the same snapshot always yields
// the same result list.
package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quietbeacon/epi/internal/errors"
	"github.com/quietbeacon/epi/internal/semantic"
	"github.com/quietbeacon/epi/internal/store"
	"github.com/quietbeacon/epi/internal/types"
)

// Scoring constants for lookup ranking configuration
const (
	DefaultExactScore        = 100.0
	DefaultKeywordTokenScore = 10.0
	DefaultFuzzyScale        = 8.0
	DefaultMaxResults        = 100
)

// Engine resolves queries against one snapshot at a time. It holds no
// snapshot reference itself, so a single engine serves every
// generation of the store.
type Engine struct {
	tokenizer  *semantic.Tokenizer
	fuzzy      *semantic.FuzzyMatcher
	maxResults int
}

// NewEngine creates a lookup engine. The tokenizer must be the one the
// store's keyword index was built with.
func NewEngine(tokenizer *semantic.Tokenizer, fuzzy *semantic.FuzzyMatcher, maxResults int) *Engine {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Engine{
		tokenizer:  tokenizer,
		fuzzy:      fuzzy,
		maxResults: maxResults,
	}
}

// Lookup resolves a free-form descriptor to ranked candidates.
// A blank query is InvalidQuery; a query that matches nothing is an
// empty result and nil error.
func (e *Engine) Lookup(snap *store.Snapshot, query string) ([]Result, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, errors.NewInvalidQuery(query, "query is blank")
	}
	normalized := strings.ToLower(trimmed)

	if results := e.exactLayer(snap, normalized); len(results) > 0 {
		return e.finish(snap, results), nil
	}

	if results := e.keywordLayer(snap, trimmed); len(results) > 0 {
		return e.finish(snap, results), nil
	}

	return e.finish(snap, e.fuzzyLayer(snap, trimmed)), nil
}

// exactLayer matches the normalized query against full titles and ids.
// An exact hit always outranks everything else, so the layers below
// never run when it is non-empty.
func (e *Engine) exactLayer(snap *store.Snapshot, normalized string) []Result {
	var results []Result
	seen := make(map[types.ProcedureID]bool)

	for _, id := range snap.TitleMatches(normalized) {
		proc, err := snap.Get(id)
		if err != nil {
			continue
		}
		seen[id] = true
		results = append(results, Result{
			Procedure: proc,
			Rank:      RankExact,
			Score:     DefaultExactScore,
		})
	}

	id := types.ProcedureID(normalized)
	if !seen[id] && snap.HasID(id) {
		proc, _ := snap.Get(id)
		results = append(results, Result{
			Procedure: proc,
			Rank:      RankExact,
			Score:     DefaultExactScore,
		})
	}

	return results
}

// keywordLayer scores candidates by stemmed token hits against the
// keyword index. Each query token that lands on a procedure adds a
// fixed amount, so procedures covering more of the query rank higher.
func (e *Engine) keywordLayer(snap *store.Snapshot, query string) []Result {
	tokens := e.tokenizer.Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	scores := make(map[types.ProcedureID]float64)
	matched := make(map[types.ProcedureID][]string)
	var hit []types.ProcedureID

	for _, token := range tokens {
		for _, id := range snap.KeywordCandidates(token) {
			if _, ok := scores[id]; !ok {
				hit = append(hit, id)
			}
			scores[id] += DefaultKeywordTokenScore
			matched[id] = append(matched[id], token)
		}
	}

	results := make([]Result, 0, len(hit))
	for _, id := range hit {
		proc, err := snap.Get(id)
		if err != nil {
			continue
		}
		results = append(results, Result{
			Procedure: proc,
			Rank:      RankKeyword,
			Score:     scores[id],
			Matched:   matched[id],
		})
	}
	return results
}

// fuzzyLayer is the last-resort typo net: raw query words are compared
// against the raw index vocabulary and similar words vote for the
// procedures they came from. Disabled matchers make this a no-op.
func (e *Engine) fuzzyLayer(snap *store.Snapshot, query string) []Result {
	if e.fuzzy == nil || !e.fuzzy.IsEnabled() {
		return nil
	}

	words := e.tokenizer.Words(query)
	if len(words) == 0 {
		return nil
	}

	scores := make(map[types.ProcedureID]float64)
	interpreted := make(map[types.ProcedureID]string)
	var hit []types.ProcedureID

	for _, word := range words {
		for _, match := range e.fuzzy.FindMatches(word, snap.Vocabulary()) {
			for _, id := range snap.WordProcedures(match.Term) {
				if _, ok := scores[id]; !ok {
					hit = append(hit, id)
					interpreted[id] = fmt.Sprintf("%q interpreted as %q", word, match.Term)
				}
				scores[id] += match.Similarity * DefaultFuzzyScale
			}
		}
	}

	results := make([]Result, 0, len(hit))
	for _, id := range hit {
		proc, err := snap.Get(id)
		if err != nil {
			continue
		}
		results = append(results, Result{
			Procedure: proc,
			Rank:      RankFuzzy,
			Score:     scores[id],
			Warning:   interpreted[id],
		})
	}
	return results
}

// finish applies the deterministic ordering: rank class first, score
// descending, then the store's authored position. Truncation happens
// only after ordering so the cut is stable too.
func (e *Engine) finish(snap *store.Snapshot, results []Result) []Result {
	if len(results) == 0 {
		return []Result{}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Rank != results[j].Rank {
			return results[i].Rank > results[j].Rank
		}
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return snap.PositionOf(results[i].Procedure.ID) < snap.PositionOf(results[j].Procedure.ID)
	})

	if len(results) > e.maxResults {
		results = results[:e.maxResults]
	}
	return results
}
