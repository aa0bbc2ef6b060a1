package indexing

import (
	"path/filepath"
	"strings"

	"github.com/quietbeacon/epi/internal/parser"
	"github.com/quietbeacon/epi/internal/types"
)

// Codec decodes one manual source format into a Document.
type Codec interface {
	// Name identifies the codec in logs and stats.
	Name() string

	// Decode parses one source. path provides error and warning
	// context only; ids are derived from content, never from the
	// file name.
	Decode(path string, data []byte) (*types.Document, error)
}

// CodecFor selects a codec by file extension, or nil when the
// extension is not a supported manual format.
func CodecFor(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt":
		return textCodec{}
	case ".json":
		return datasetCodec{format: formatJSON}
	case ".yaml", ".yml":
		return datasetCodec{format: formatYAML}
	case ".toml":
		return datasetCodec{format: formatTOML}
	}
	return nil
}

// textCodec handles the structured manual text grammar, the primary
// authoring format.
type textCodec struct{}

func (textCodec) Name() string { return "manual-text" }

func (textCodec) Decode(path string, data []byte) (*types.Document, error) {
	return parser.NewManualParser().Parse(path, data)
}
