package indexing

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/quietbeacon/epi/internal/config"
	"github.com/quietbeacon/epi/internal/errors"
)

func scanConfig(root string) *config.Config {
	cfg := &config.Config{}
	cfg.Project.Root = root
	cfg.Sources.Include = []string{"manuals/**/*.md", "manuals/**/*.txt"}
	cfg.Sources.Exclude = []string{"**/drafts/**", "**/archive/**"}
	cfg.Sources.MaxFileSize = 1 << 20
	return cfg
}

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScannerFindsManuals(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/fire.md", "# Fire\n1. Step\n")
	writeSource(t, root, "manuals/sub/medical.txt", "# Medical\n1. Step\n")
	writeSource(t, root, "manuals/drafts/wip.md", "# WIP\n1. Step\n")
	writeSource(t, root, "README.md", "not a manual")

	paths, err := NewScanner(scanConfig(root)).Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	want := []string{"manuals/fire.md", "manuals/sub/medical.txt"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("got %v, want %v", paths, want)
	}
}

func TestScannerOutputIsSorted(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"manuals/z.md", "manuals/a.md", "manuals/m/k.md"} {
		writeSource(t, root, rel, "# X\n1. Step\n")
	}

	paths, err := NewScanner(scanConfig(root)).Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	want := []string{"manuals/a.md", "manuals/m/k.md", "manuals/z.md"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("got %v, want %v", paths, want)
	}
}

func TestScannerSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/small.md", "# Small\n1. Step\n")
	writeSource(t, root, "manuals/big.md", strings.Repeat("x", 200))

	cfg := scanConfig(root)
	cfg.Sources.MaxFileSize = 100

	paths, err := NewScanner(cfg).Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != "manuals/small.md" {
		t.Errorf("got %v, want only manuals/small.md", paths)
	}
}

func TestScannerSkipsHiddenDirectories(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/fire.md", "# Fire\n1. Step\n")
	writeSource(t, root, "manuals/.backup/fire.md", "# Fire\n1. Step\n")

	paths, err := NewScanner(scanConfig(root)).Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != "manuals/fire.md" {
		t.Errorf("got %v, want only manuals/fire.md", paths)
	}
}

func TestScannerPrunesExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "manuals/current.md", "# Current\n1. Step\n")
	writeSource(t, root, "manuals/archive/2019.md", "# Old\n1. Step\n")
	writeSource(t, root, "manuals/archive/deep/2018.md", "# Older\n1. Step\n")

	paths, err := NewScanner(scanConfig(root)).Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != "manuals/current.md" {
		t.Errorf("got %v, want only manuals/current.md", paths)
	}
}

func TestScannerEmptyIncludeMatchesEverything(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "alpha.md", "# A\n1. Step\n")
	writeSource(t, root, "beta.json", `{"procedures":[]}`)

	cfg := scanConfig(root)
	cfg.Sources.Include = nil

	paths, err := NewScanner(cfg).Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	want := []string{"alpha.md", "beta.json"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("got %v, want %v", paths, want)
	}
}

func TestScannerMissingRoot(t *testing.T) {
	cfg := scanConfig(filepath.Join(t.TempDir(), "does-not-exist"))

	_, err := NewScanner(cfg).Scan()
	if err == nil {
		t.Fatal("expected error for missing root")
	}
	var srcErr *errors.SourceError
	if !stderrors.As(err, &srcErr) {
		t.Errorf("expected SourceError, got %T", err)
	}
}

func TestScannerRootIsFile(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "file.md", "# X\n1. Step\n")

	cfg := scanConfig(filepath.Join(root, "file.md"))
	if _, err := NewScanner(cfg).Scan(); err == nil {
		t.Fatal("expected error when root is a file")
	}
}

func TestScannerSymlinkedFiles(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "outside.md", "# Outside\n1. Step\n")
	if err := os.MkdirAll(filepath.Join(root, "manuals"), 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "manuals", "linked.md")
	if err := os.Symlink(filepath.Join(root, "outside.md"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	cfg := scanConfig(root)
	paths, err := NewScanner(cfg).Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("symlinks followed by default: %v", paths)
	}

	cfg.Sources.FollowSymlinks = true
	paths, err = NewScanner(cfg).Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != "manuals/linked.md" {
		t.Errorf("got %v, want manuals/linked.md", paths)
	}
}
