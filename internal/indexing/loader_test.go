package indexing

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/quietbeacon/epi/internal/config"
	"github.com/quietbeacon/epi/internal/errors"
	"github.com/quietbeacon/epi/internal/semantic"
	"github.com/quietbeacon/epi/internal/types"
)

const fireManual = `# Fire in Spacecraft
Severity: critical
Keywords: fire, smoke, burning

- Do NOT use water-based extinguishers near electronics.

1. Sound the fire alarm and alert all crew.
2. Don breathing apparatus.
3. Cut power and close ventilation.
4. Discharge the CO2 extinguisher at the base of the flames.
5. Seal the module and monitor for reignition.
`

const medicalManual = `# Astronaut Medical Support
Severity: high
Keywords: medical

- Consult ground medical before administering medication.

## Hypoxia Response
Keywords: oxygen, breathing

1. Move the astronaut to the nearest oxygen mask.
2. Set the regulator to full flow.
`

func loaderConfig(root string) *config.Config {
	cfg := scanConfig(root)
	cfg.Load.ParallelWorkers = 2
	return cfg
}

func testTokenizer() *semantic.Tokenizer {
	return semantic.NewTokenizer(semantic.NewStemmer(true, "porter2", 3, nil))
}

func TestLoaderBuildsSnapshot(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/fire.md", fireManual)
	writeSource(t, root, "manuals/medical.md", medicalManual)

	loader := NewLoader(loaderConfig(root), testTokenizer())
	snap, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if snap.Count() != 3 {
		t.Errorf("count = %d, want 3", snap.Count())
	}
	if snap.SourceCount() != 2 {
		t.Errorf("sources = %d, want 2", snap.SourceCount())
	}

	fire, err := snap.Get("fire-in-spacecraft")
	if err != nil {
		t.Fatalf("get fire: %v", err)
	}
	if len(fire.Steps) != 5 || len(fire.Notes) != 1 {
		t.Errorf("fire steps=%d notes=%d", len(fire.Steps), len(fire.Notes))
	}

	children, err := snap.Children("astronaut-medical-support")
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 1 || children[0].ID != "astronaut-medical-support.hypoxia-response" {
		t.Errorf("children = %v", children)
	}
}

func TestLoaderDeterministicFingerprint(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/fire.md", fireManual)
	writeSource(t, root, "manuals/medical.md", medicalManual)

	loader := NewLoader(loaderConfig(root), testTokenizer())

	first, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("second load: %v", err)
	}

	if first.Fingerprint() != second.Fingerprint() {
		t.Errorf("fingerprints differ: %x vs %x", first.Fingerprint(), second.Fingerprint())
	}
	if first.Fingerprint() == 0 {
		t.Error("fingerprint is zero")
	}
}

func TestLoaderDuplicateAcrossFiles(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/a.md", fireManual)
	writeSource(t, root, "manuals/b.md", fireManual)

	loader := NewLoader(loaderConfig(root), testTokenizer())
	_, err := loader.Load(context.Background())
	if err == nil {
		t.Fatal("expected duplicate error")
	}
	if !errors.IsDuplicate(err) {
		t.Errorf("expected DuplicateIdentifier, got %v", err)
	}
}

func TestLoaderEmbeddedFallback(t *testing.T) {
	cfg := loaderConfig(t.TempDir())
	cfg.Sources.UseEmbedded = true

	loader := NewLoader(cfg, testTokenizer())
	snap, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if !snap.HasID("fire-in-spacecraft") {
		t.Error("embedded manual missing fire-in-spacecraft")
	}
	if !snap.HasID("astronaut-medical-support.panic-stress-response") {
		t.Error("embedded manual missing panic-stress-response")
	}
}

func TestLoaderNoSourcesNoEmbedded(t *testing.T) {
	cfg := loaderConfig(t.TempDir())
	cfg.Sources.UseEmbedded = false

	loader := NewLoader(cfg, testTokenizer())
	_, err := loader.Load(context.Background())
	if err == nil {
		t.Fatal("expected error with no sources")
	}
	var srcErr *errors.SourceError
	if !stderrors.As(err, &srcErr) {
		t.Errorf("expected SourceError, got %T", err)
	}
}

func TestLoaderExpiredContext(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/fire.md", fireManual)

	cfg := loaderConfig(root)
	cfg.Load.TimeoutSec = 0

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	loader := NewLoader(cfg, testTokenizer())
	_, err := loader.Load(ctx)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.IsLoadTimeout(err) {
		t.Errorf("expected LoadTimeout, got %v", err)
	}
}

func TestLoaderCanceledContextPassesThrough(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/fire.md", fireManual)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader := NewLoader(loaderConfig(root), testTokenizer())
	_, err := loader.Load(ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if errors.IsLoadTimeout(err) {
		t.Error("cancellation must not be reported as a timeout")
	}
}

func TestLoaderSkipsUnsupportedExtensions(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/fire.md", fireManual)
	writeSource(t, root, "manuals/scan.tiff", "binary-ish")

	cfg := loaderConfig(root)
	cfg.Sources.Include = []string{"manuals/**"}

	loader := NewLoader(cfg, testTokenizer())
	snap, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if snap.SourceCount() != 1 {
		t.Errorf("sources = %d, want 1", snap.SourceCount())
	}
}

func TestLoaderRejectsDisguisedBinary(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/fire.md", fireManual)
	png := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 256)...)
	writeSource(t, root, "manuals/diagram.md", string(png))

	loader := NewLoader(loaderConfig(root), testTokenizer())
	snap, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if snap.SourceCount() != 1 {
		t.Errorf("sources = %d, want 1", snap.SourceCount())
	}
	found := false
	for _, w := range snap.Warnings() {
		if w.Path == "manuals/diagram.md" && strings.Contains(w.Message, "skipped") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a skip warning for the disguised file, got %v", snap.Warnings())
	}
}

func TestLoaderMixedFormats(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/fire.md", fireManual)
	writeSource(t, root, "manuals/reactor.json", `{
		"procedures": [{"title": "Reactor Shutdown", "severity": "critical", "steps": ["Insert control rods"]}]
	}`)
	writeSource(t, root, "manuals/water.yaml", `
procedures:
  - title: Water Recycler Fault
    steps: [Check the filter stack]
`)

	cfg := loaderConfig(root)
	cfg.Sources.Include = []string{"manuals/**/*.md", "manuals/**/*.json", "manuals/**/*.yaml"}

	loader := NewLoader(cfg, testTokenizer())
	snap, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	for _, id := range []string{"fire-in-spacecraft", "reactor-shutdown", "water-recycler-fault"} {
		if !snap.HasID(types.ProcedureID(id)) {
			t.Errorf("missing %s", id)
		}
	}
}

func TestLoaderSurfacesParserWarnings(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/odd.md", `# Odd Section
This body is free prose with no recognizable structure.

## Real Procedure
1. Do the thing.
`)

	loader := NewLoader(loaderConfig(root), testTokenizer())
	snap, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(snap.Warnings()) == 0 {
		t.Error("expected a review warning for the prose-only heading")
	}
}

func TestLoaderPropagatesEmptyLeaf(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/empty.md", "# Hollow Procedure\n\nSome prose only.\n")

	loader := NewLoader(loaderConfig(root), testTokenizer())
	_, err := loader.Load(context.Background())
	if err == nil {
		t.Fatal("expected malformed error for empty leaf")
	}
	if !errors.IsMalformed(err) {
		t.Errorf("expected MalformedProcedure, got %v", err)
	}
}
