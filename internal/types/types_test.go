package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name     string
		heading  string
		expected string
	}{
		{"simple", "Fire", "fire"},
		{"multi word", "Fire in Spacecraft", "fire-in-spacecraft"},
		{"punctuation collapses", "Panic/Stress Response", "panic-stress-response"},
		{"surrounding space trimmed", "  Oxygen Leak  ", "oxygen-leak"},
		{"repeated separators", "Suit -- Pressure!! Loss", "suit-pressure-loss"},
		{"digits kept", "Airlock 2 Failure", "airlock-2-failure"},
		{"leading punctuation dropped", "...Decompression", "decompression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slug(tt.heading))
		})
	}
}

func TestDeriveID(t *testing.T) {
	root := DeriveID("", "Astronaut Medical Support")
	assert.Equal(t, ProcedureID("astronaut-medical-support"), root)

	child := DeriveID(root, "Hypoxia Response")
	assert.Equal(t, ProcedureID("astronaut-medical-support.hypoxia-response"), child)

	grandchild := DeriveID(child, "Severe Cases")
	assert.Equal(t, ProcedureID("astronaut-medical-support.hypoxia-response.severe-cases"), grandchild)
}

func TestDeriveIDIsDeterministic(t *testing.T) {
	a := DeriveID("medical", "Hypoxia Response")
	b := DeriveID("medical", "Hypoxia  Response")
	assert.Equal(t, a, b, "whitespace variants must normalize to the same id")
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		input string
		want  Severity
		ok    bool
	}{
		{"CRITICAL", SeverityCritical, true},
		{"high", SeverityHigh, true},
		{" Medium ", SeverityMedium, true},
		{"low", SeverityLow, true},
		{"Info", SeverityInfo, true},
		{"urgent", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseSeverity(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestProcedureHasContent(t *testing.T) {
	empty := &Procedure{ID: "x", Title: "X"}
	assert.False(t, empty.HasContent())

	withSteps := &Procedure{Steps: []Step{{Seq: 1, Text: "do the thing"}}}
	assert.True(t, withSteps.HasContent())

	withNotes := &Procedure{Notes: []string{"advisory"}}
	assert.True(t, withNotes.HasContent())
}
