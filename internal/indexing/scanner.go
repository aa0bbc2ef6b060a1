// Package indexing discovers manual sources, decodes them and builds
// store snapshots from the result. The loader is the only writer of
// snapshots; readers always work against whatever snapshot the store
// container currently holds.
package indexing

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/quietbeacon/epi/internal/config"
	"github.com/quietbeacon/epi/internal/debug"
	"github.com/quietbeacon/epi/internal/errors"
)

// Scanner discovers manual source files under the project root. Paths
// are matched slash-separated and relative to the root so patterns
// behave identically on every platform and scan output feeds the store
// fingerprint deterministically.
type Scanner struct {
	root           string
	include        []string
	exclude        []string
	maxFileSize    int64
	followSymlinks bool
}

// NewScanner builds a scanner from the source settings in cfg.
func NewScanner(cfg *config.Config) *Scanner {
	return &Scanner{
		root:           cfg.Project.Root,
		include:        append([]string(nil), cfg.Sources.Include...),
		exclude:        append([]string(nil), cfg.Sources.Exclude...),
		maxFileSize:    cfg.Sources.MaxFileSize,
		followSymlinks: cfg.Sources.FollowSymlinks,
	}
}

// Scan walks the root and returns the matching manual paths relative
// to it, sorted lexicographically. Unreadable entries are skipped; a
// missing root is an error.
func (s *Scanner) Scan() ([]string, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, errors.NewSourceError("scan", s.root, err)
	}
	if !info.IsDir() {
		return nil, errors.NewSourceError("scan", s.root, fmt.Errorf("not a directory"))
	}

	var paths []string
	walkErr := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			debug.LogLoad("scan: skipping %s: %v", p, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if s.shouldSkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		size, ok := s.fileSize(p, d)
		if !ok {
			return nil
		}
		if !s.matchesInclude(rel) || s.matchesExclude(rel) {
			return nil
		}
		if s.maxFileSize > 0 && size > s.maxFileSize {
			debug.LogLoad("scan: skipping %s: %d bytes exceeds limit", rel, size)
			return nil
		}

		paths = append(paths, rel)
		return nil
	})
	if walkErr != nil {
		return nil, errors.NewSourceError("scan", s.root, walkErr)
	}

	sort.Strings(paths)
	return paths, nil
}

// fileSize resolves the size of a walk entry, following symlinks only
// when configured. Non-regular targets report not-ok.
func (s *Scanner) fileSize(p string, d fs.DirEntry) (int64, bool) {
	if d.Type()&fs.ModeSymlink != 0 {
		if !s.followSymlinks {
			return 0, false
		}
		target, err := os.Stat(p)
		if err != nil || !target.Mode().IsRegular() {
			return 0, false
		}
		return target.Size(), true
	}

	fi, err := d.Info()
	if err != nil || !fi.Mode().IsRegular() {
		return 0, false
	}
	return fi.Size(), true
}

// shouldSkipDir prunes directories the exclusion patterns rule out
// entirely. Patterns like "**/drafts/**" name the files inside a
// directory, so the "/**" suffix is stripped before matching the
// directory itself. Hidden directories are never scanned.
func (s *Scanner) shouldSkipDir(rel string) bool {
	if strings.HasPrefix(path.Base(rel), ".") {
		return true
	}
	for _, pattern := range s.exclude {
		dir := strings.TrimSuffix(pattern, "/**")
		if dir == pattern {
			continue
		}
		if matched, err := doublestar.Match(dir, rel); err == nil && matched {
			return true
		}
	}
	return false
}

// matchesInclude reports whether rel matches any inclusion pattern.
// With no patterns configured everything is included. Bad patterns are
// ignored rather than failing the scan.
func (s *Scanner) matchesInclude(rel string) bool {
	if len(s.include) == 0 {
		return true
	}
	for _, pattern := range s.include {
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// matchesExclude reports whether rel matches any exclusion pattern.
func (s *Scanner) matchesExclude(rel string) bool {
	for _, pattern := range s.exclude {
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
