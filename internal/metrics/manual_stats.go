// Package metrics derives manual-set statistics from store snapshots.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/quietbeacon/epi/internal/store"
	"github.com/quietbeacon/epi/internal/types"
)

// ManualStats represents manual-set metrics derived from one snapshot.
type ManualStats struct {
	// Record-level metrics
	TotalProcedures int64
	TotalCategories int64
	TotalSteps      int64
	TotalNotes      int64
	TotalQuestions  int64
	MaxDepth        int64

	// Distribution metrics
	SeverityDistribution map[string]int64
	Categories           []CategoryStats

	// Index metrics
	KeywordCount   int64
	VocabularySize int64

	// Provenance
	Generation  uint64
	Fingerprint string
	Sources     int64
	Warnings    int64
	BuiltAt     time.Time
}

// CategoryStats represents metrics for one top-level category and its
// whole subtree.
type CategoryStats struct {
	ID         string
	Title      string
	Severity   string
	Procedures int64
	Steps      int64
}

// Compute derives all metrics from a snapshot in one pass plus a
// per-category subtree walk.
func Compute(snap *store.Snapshot) *ManualStats {
	ms := &ManualStats{
		SeverityDistribution: make(map[string]int64),
		Generation:           snap.Generation(),
		Fingerprint:          fmt.Sprintf("%016x", snap.Fingerprint()),
		Sources:              int64(snap.SourceCount()),
		Warnings:             int64(len(snap.Warnings())),
		BuiltAt:              snap.BuiltAt(),
		KeywordCount:         int64(snap.KeywordCount()),
		VocabularySize:       int64(len(snap.Vocabulary())),
	}

	for _, proc := range snap.All() {
		ms.TotalProcedures++
		ms.TotalSteps += int64(len(proc.Steps))
		ms.TotalNotes += int64(len(proc.Notes))
		ms.TotalQuestions += int64(len(proc.Questions))

		sev := string(proc.Severity)
		if sev == "" {
			sev = "unspecified"
		}
		ms.SeverityDistribution[sev]++

		if depth := int64(strings.Count(string(proc.ID), ".")) + 1; depth > ms.MaxDepth {
			ms.MaxDepth = depth
		}
	}

	for _, cat := range snap.Categories() {
		ms.TotalCategories++
		cs := CategoryStats{
			ID:       string(cat.ID),
			Title:    cat.Title,
			Severity: string(cat.Severity),
		}
		accumulateSubtree(snap, cat.ID, &cs)
		ms.Categories = append(ms.Categories, cs)
	}

	return ms
}

// accumulateSubtree sums a category's whole subtree, the category
// itself included.
func accumulateSubtree(snap *store.Snapshot, id types.ProcedureID, cs *CategoryStats) {
	proc, err := snap.Get(id)
	if err != nil {
		return
	}
	cs.Procedures++
	cs.Steps += int64(len(proc.Steps))

	children, err := snap.Children(id)
	if err != nil {
		return
	}
	for _, child := range children {
		accumulateSubtree(snap, child.ID, cs)
	}
}

// FormatAsJSON returns stats as a JSON-serializable map with stable
// section ordering.
func (ms *ManualStats) FormatAsJSON() map[string]interface{} {
	severities := make([]map[string]interface{}, 0, len(ms.SeverityDistribution))
	for sev, count := range ms.SeverityDistribution {
		severities = append(severities, map[string]interface{}{
			"severity": sev,
			"count":    count,
		})
	}
	sort.Slice(severities, func(i, j int) bool {
		return severities[i]["severity"].(string) < severities[j]["severity"].(string)
	})

	categories := make([]map[string]interface{}, 0, len(ms.Categories))
	for _, cs := range ms.Categories {
		categories = append(categories, map[string]interface{}{
			"id":         cs.ID,
			"title":      cs.Title,
			"severity":   cs.Severity,
			"procedures": cs.Procedures,
			"steps":      cs.Steps,
		})
	}

	return map[string]interface{}{
		"summary": map[string]interface{}{
			"procedures": ms.TotalProcedures,
			"categories": ms.TotalCategories,
			"steps":      ms.TotalSteps,
			"notes":      ms.TotalNotes,
			"questions":  ms.TotalQuestions,
			"max_depth":  ms.MaxDepth,
		},
		"severities": severities,
		"categories": categories,
		"index": map[string]interface{}{
			"keywords":   ms.KeywordCount,
			"vocabulary": ms.VocabularySize,
		},
		"snapshot": map[string]interface{}{
			"generation":  ms.Generation,
			"fingerprint": ms.Fingerprint,
			"sources":     ms.Sources,
			"warnings":    ms.Warnings,
			"built_at":    ms.BuiltAt.Format(time.RFC3339),
		},
	}
}

// FormatAsText returns stats formatted as a human-readable report.
func (ms *ManualStats) FormatAsText() string {
	var sb strings.Builder

	sb.WriteString("╔════════════════════════════════════════════════════════════════╗\n")
	sb.WriteString("║           EMERGENCY PROCEDURE INDEX - MANUAL REPORT            ║\n")
	sb.WriteString("╚════════════════════════════════════════════════════════════════╝\n\n")

	sb.WriteString("📊 SUMMARY\n")
	sb.WriteString("─────────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("  Procedures:         %d\n", ms.TotalProcedures))
	sb.WriteString(fmt.Sprintf("  Categories:         %d\n", ms.TotalCategories))
	sb.WriteString(fmt.Sprintf("  Steps:              %d\n", ms.TotalSteps))
	sb.WriteString(fmt.Sprintf("  Notes:              %d\n", ms.TotalNotes))
	sb.WriteString(fmt.Sprintf("  Questions:          %d\n", ms.TotalQuestions))
	sb.WriteString(fmt.Sprintf("  Max Nesting Depth:  %d\n", ms.MaxDepth))

	sb.WriteString("\n🚨 SEVERITY DISTRIBUTION\n")
	sb.WriteString("─────────────────────────────────────────────────────────────────\n")
	for _, sev := range append(severityOrder(), "unspecified") {
		if count, ok := ms.SeverityDistribution[sev]; ok {
			sb.WriteString(fmt.Sprintf("  %-12s %5d\n", sev+":", count))
		}
	}

	sb.WriteString("\n📁 CATEGORIES\n")
	sb.WriteString("─────────────────────────────────────────────────────────────────\n")
	for _, cs := range ms.Categories {
		sev := cs.Severity
		if sev == "" {
			sev = "unspecified"
		}
		sb.WriteString(fmt.Sprintf("  %-32s %3d procedures  %4d steps  [%s]\n",
			cs.Title, cs.Procedures, cs.Steps, sev))
	}

	sb.WriteString("\n🔤 INDEX\n")
	sb.WriteString("─────────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("  Keyword Tokens:     %d\n", ms.KeywordCount))
	sb.WriteString(fmt.Sprintf("  Fuzzy Vocabulary:   %d\n", ms.VocabularySize))

	sb.WriteString("\n📦 SNAPSHOT\n")
	sb.WriteString("─────────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("  Generation:         %d\n", ms.Generation))
	sb.WriteString(fmt.Sprintf("  Fingerprint:        %s\n", ms.Fingerprint))
	sb.WriteString(fmt.Sprintf("  Sources:            %d\n", ms.Sources))
	sb.WriteString(fmt.Sprintf("  Warnings:           %d\n", ms.Warnings))
	sb.WriteString(fmt.Sprintf("  Built:              %s\n", ms.BuiltAt.Format(time.RFC3339)))

	return sb.String()
}

func severityOrder() []string {
	out := make([]string, 0, 5)
	for _, sev := range types.Severities() {
		out = append(out, string(sev))
	}
	return out
}
