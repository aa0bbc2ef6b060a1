package display

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quietbeacon/epi/internal/types"
)

func manualFixture() []*types.Procedure {
	return []*types.Procedure{
		{ID: "fire", Title: "Fire"},
		{
			ID: "fire.electrical-fire", Title: "Electrical Fire", ParentID: "fire",
			Severity: types.SeverityCritical,
			Steps:    []types.Step{{Seq: 1, Text: "Cut power."}, {Seq: 2, Text: "Use CO2."}},
		},
		{
			ID: "fire.kitchen-fire", Title: "Kitchen Fire", ParentID: "fire",
			Severity: types.SeverityHigh,
			Steps:    []types.Step{{Seq: 1, Text: "Smother the pan."}},
		},
		{ID: "medical", Title: "Medical"},
		{
			ID: "medical.severe-bleeding", Title: "Severe Bleeding", ParentID: "medical",
			Severity: types.SeverityCritical,
			Steps:    []types.Step{{Seq: 1, Text: "Apply pressure."}},
		},
		{
			ID: "medical.severe-bleeding.tourniquet", Title: "Tourniquet Application",
			ParentID: "medical.severe-bleeding",
			Steps:    []types.Step{{Seq: 1, Text: "Place two inches above the wound."}},
		},
	}
}

// TestTreeFormatter_Format tests rendering a full procedure hierarchy.
func TestTreeFormatter_Format(t *testing.T) {
	formatter := NewTreeFormatter(TreeOptions{})

	output := formatter.Format(manualFixture())

	assert.Contains(t, output, "→ Fire  [fire]")
	assert.Contains(t, output, "├─→ Electrical Fire (critical)  [fire.electrical-fire]")
	assert.Contains(t, output, "└─→ Kitchen Fire (high)  [fire.kitchen-fire]")
	assert.Contains(t, output, "→ Medical  [medical]")

	// The third level nests under Severe Bleeding, not under Medical
	assert.Contains(t, output, "└─→ Tourniquet Application  [medical.severe-bleeding.tourniquet]")
	tourniquetLine := lineContaining(t, output, "Tourniquet")
	bleedingLine := lineContaining(t, output, "Severe Bleeding")
	assert.Greater(t, indentOf(tourniquetLine), indentOf(bleedingLine))
}

// TestTreeFormatter_Format_Empty tests the tree formatter with no procedures.
func TestTreeFormatter_Format_Empty(t *testing.T) {
	formatter := NewTreeFormatter(TreeOptions{})
	assert.Equal(t, "No procedures loaded\n", formatter.Format(nil))
}

// TestTreeFormatter_ShowSteps tests the step count annotation.
func TestTreeFormatter_ShowSteps(t *testing.T) {
	formatter := NewTreeFormatter(TreeOptions{ShowSteps: true})

	output := formatter.Format(manualFixture())

	assert.Contains(t, output, "Electrical Fire (critical, 2 steps)")
	assert.Contains(t, output, "Kitchen Fire (high, 1 steps)")
	// No severity declared, so the step count stands alone
	assert.Contains(t, output, "Tourniquet Application (1 steps)")
}

// TestTreeFormatter_MaxDepth tests depth-limited rendering.
func TestTreeFormatter_MaxDepth(t *testing.T) {
	formatter := NewTreeFormatter(TreeOptions{MaxDepth: 2})

	output := formatter.Format(manualFixture())

	assert.Contains(t, output, "Severe Bleeding")
	assert.NotContains(t, output, "Tourniquet")

	// Depth 1 keeps only the categories
	rootsOnly := NewTreeFormatter(TreeOptions{MaxDepth: 1}).Format(manualFixture())
	assert.Contains(t, rootsOnly, "→ Fire")
	assert.NotContains(t, rootsOnly, "Electrical Fire")
}

// TestTreeFormatter_OrphanBecomesRoot tests rendering a filtered slice
// whose parent records are missing.
func TestTreeFormatter_OrphanBecomesRoot(t *testing.T) {
	formatter := NewTreeFormatter(TreeOptions{})

	procs := []*types.Procedure{
		{ID: "fire.kitchen-fire", Title: "Kitchen Fire", ParentID: "fire",
			Steps: []types.Step{{Seq: 1, Text: "Smother the pan."}}},
	}
	output := formatter.Format(procs)

	assert.Contains(t, output, "→ Kitchen Fire  [fire.kitchen-fire]")
}

func lineContaining(t *testing.T, output, substr string) string {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, substr) {
			return line
		}
	}
	t.Fatalf("no line contains %q in:\n%s", substr, output)
	return ""
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " │"))
}
