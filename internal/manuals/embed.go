// Package manuals ships the default flight procedure manual compiled
// into the binary. It is served when a project configures no manual
// sources of its own, so the engine always has guidance to offer.
package manuals

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed *.md
var builtin embed.FS

// Source is one embedded manual file.
type Source struct {
	Name string
	Data []byte
}

// Builtin returns the embedded manual sources in name order.
func Builtin() ([]Source, error) {
	entries, err := fs.ReadDir(builtin, ".")
	if err != nil {
		return nil, err
	}

	sources := make([]Source, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := builtin.ReadFile(entry.Name())
		if err != nil {
			return nil, err
		}
		sources = append(sources, Source{Name: entry.Name(), Data: data})
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources, nil
}
