package indexing

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quietbeacon/epi/internal/config"
	"github.com/quietbeacon/epi/internal/debug"
	"github.com/quietbeacon/epi/internal/errors"
	"github.com/quietbeacon/epi/internal/manuals"
	"github.com/quietbeacon/epi/internal/security"
	"github.com/quietbeacon/epi/internal/semantic"
	"github.com/quietbeacon/epi/internal/store"
	"github.com/quietbeacon/epi/internal/types"
)

// Loader assembles store snapshots from manual sources. Decoding runs
// in parallel but documents are merged in scan order, so the same
// sources always build the same snapshot.
type Loader struct {
	cfg       *config.Config
	scanner   *Scanner
	guard     *security.SourceGuard
	tokenizer *semantic.Tokenizer
}

// NewLoader builds a loader over cfg. The tokenizer must be the same
// one the lookup engine uses or keyword stems will not line up.
func NewLoader(cfg *config.Config, tokenizer *semantic.Tokenizer) *Loader {
	return &Loader{
		cfg:       cfg,
		scanner:   NewScanner(cfg),
		guard:     security.NewSourceGuard(),
		tokenizer: tokenizer,
	}
}

// source is one manual source ready to decode.
type source struct {
	path  string
	data  []byte
	codec Codec
}

// Load scans, decodes and assembles a new snapshot. The snapshot is
// returned, not installed; the caller decides when to swap it in, so a
// failed load leaves whatever was being served before untouched.
func (l *Loader) Load(ctx context.Context) (*store.Snapshot, error) {
	if sec := l.cfg.Load.TimeoutSec; sec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(sec)*time.Second)
		defer cancel()
	}

	started := time.Now()
	sources, skipped, err := l.collectSources(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]*types.Document, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	workers := l.cfg.Load.ParallelWorkers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := sources[i].codec.Decode(sources[i].path, sources[i].data)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, classifyLoadErr(err)
	}

	builder := store.NewBuilder(l.tokenizer)
	for i, doc := range docs {
		if err := builder.Add(doc, sources[i].data); err != nil {
			return nil, err
		}
	}
	for _, w := range skipped {
		builder.Warn(w)
	}
	snap, err := builder.Build()
	if err != nil {
		return nil, err
	}

	debug.LogLoad("built snapshot: procedures=%d sources=%d warnings=%d in %v",
		snap.Count(), snap.SourceCount(), len(snap.Warnings()), time.Since(started))
	return snap, nil
}

// collectSources reads every scanned manual into memory and pairs it
// with its codec. Sources the guard rejects are skipped and reported as
// snapshot warnings. When nothing usable matches and the embedded
// manual is enabled, the builtin sources stand in.
func (l *Loader) collectSources(ctx context.Context) ([]source, []types.Warning, error) {
	paths, err := l.scanner.Scan()
	if err != nil {
		return nil, nil, err
	}

	var skipped []types.Warning
	sources := make([]source, 0, len(paths))
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, classifyLoadErr(err)
		}
		codec := CodecFor(rel)
		if codec == nil {
			debug.LogLoad("load: no codec for %s, skipped", rel)
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.cfg.Project.Root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, nil, errors.NewSourceError("read", rel, err)
		}
		if err := l.guard.Check(data); err != nil {
			debug.LogLoad("load: %s rejected: %v", rel, err)
			skipped = append(skipped, types.Warning{Path: rel, Message: "skipped: " + err.Error()})
			continue
		}
		sources = append(sources, source{path: rel, data: data, codec: codec})
	}

	if len(sources) == 0 && l.cfg.Sources.UseEmbedded {
		embedded, err := manuals.Builtin()
		if err != nil {
			return nil, nil, errors.NewSourceError("embedded", "builtin", err)
		}
		for _, src := range embedded {
			codec := CodecFor(src.Name)
			if codec == nil {
				continue
			}
			sources = append(sources, source{path: "embedded/" + src.Name, data: src.Data, codec: codec})
		}
		debug.LogLoad("load: no manual sources matched, serving embedded manual")
	}
	if len(sources) == 0 {
		return nil, nil, errors.NewSourceError("load", l.cfg.Project.Root,
			fmt.Errorf("no usable manual sources matched the configured patterns"))
	}
	return sources, skipped, nil
}

// classifyLoadErr maps context expiry to the load timeout error;
// everything else passes through unchanged.
func classifyLoadErr(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewLoadTimeout("load", err)
	}
	return err
}
