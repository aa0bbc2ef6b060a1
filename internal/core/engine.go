// Package core wires the manual pipeline together behind one facade.
//
// An Engine owns the snapshot container, the loader, the lookup
// resolver and the result cache. Every surface (CLI, socket server,
// MCP) talks to the Engine and nothing else, so access semantics stay
// identical regardless of transport.
package core

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quietbeacon/epi/internal/cache"
	"github.com/quietbeacon/epi/internal/config"
	"github.com/quietbeacon/epi/internal/debug"
	"github.com/quietbeacon/epi/internal/indexing"
	"github.com/quietbeacon/epi/internal/metrics"
	"github.com/quietbeacon/epi/internal/search"
	"github.com/quietbeacon/epi/internal/semantic"
	"github.com/quietbeacon/epi/internal/store"
	"github.com/quietbeacon/epi/internal/types"
)

// Engine is the process-wide access point for procedure lookup and
// store lifecycle. All methods are safe for concurrent use; reads
// never block reloads and reloads never block reads.
type Engine struct {
	cfg       *config.Config
	container *store.Container
	loader    *indexing.Loader
	resolver  *search.Engine
	cache     *cache.LookupCache
	watcher   *indexing.FileWatcher

	// reloadMu serializes snapshot production, not consumption.
	reloadMu sync.Mutex

	lookups      atomic.Int64
	emptyLookups atomic.Int64
	reloads      atomic.Int64

	closeOnce sync.Once
}

// NewEngine assembles an engine from cfg. No I/O happens until Start.
func NewEngine(cfg *config.Config) *Engine {
	exclusions := make(map[string]bool, len(cfg.Stemming.Exclusions))
	for _, term := range cfg.Stemming.Exclusions {
		exclusions[strings.ToLower(term)] = true
	}
	stemmer := semantic.NewStemmer(cfg.Stemming.Enabled, cfg.Stemming.Algorithm, cfg.Stemming.MinLength, exclusions)
	tokenizer := semantic.NewTokenizer(stemmer)
	fuzzy := semantic.NewFuzzyMatcher(cfg.Matching.EnableFuzzy, cfg.Matching.FuzzyThreshold, cfg.Matching.FuzzyAlgorithm)

	return &Engine{
		cfg:       cfg,
		container: store.NewContainer(),
		loader:    indexing.NewLoader(cfg, tokenizer),
		resolver:  search.NewEngine(tokenizer, fuzzy, cfg.Matching.MaxResults),
		cache: cache.New(cache.Config{
			Enabled:     cfg.Cache.Enabled,
			MaxEntries:  cfg.Cache.MaxEntries,
			TTL:         time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
			AutoCleanup: true,
		}),
	}
}

// Start performs the initial load and, in watch mode, begins watching
// the manual tree. A failed first load leaves the engine unloaded.
func (e *Engine) Start(ctx context.Context) error {
	if _, err := e.Reload(ctx); err != nil {
		return err
	}

	if e.cfg.Load.WatchMode {
		watcher, err := indexing.NewFileWatcher(e.cfg, func(changed []string) {
			if _, err := e.Reload(context.Background()); err != nil {
				debug.LogLoad("watch reload failed, keeping previous snapshot: %v", err)
			}
		})
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		e.watcher = watcher
	}
	return nil
}

// Reload builds a fresh snapshot from the sources and publishes it.
// Concurrent reloads serialize. On error the previous snapshot keeps
// serving and the error is returned.
func (e *Engine) Reload(ctx context.Context) (*store.Snapshot, error) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	snap, err := e.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	e.container.Swap(snap)
	e.reloads.Add(1)
	stale := e.cache.InvalidateBefore(snap.Generation())
	debug.LogLoad("reload: generation=%d procedures=%d stale_cache_entries=%d",
		snap.Generation(), snap.Count(), stale)
	return snap, nil
}

// Lookup resolves an emergency-type query against the live snapshot,
// serving repeated queries from the cache. Returned results are shared
// and must be treated as read-only.
func (e *Engine) Lookup(query string) ([]search.Result, error) {
	e.lookups.Add(1)

	snap := e.container.Current()
	key := strings.ToLower(strings.TrimSpace(query))
	if key != "" {
		if results, ok := e.cache.Get(snap.Generation(), key); ok {
			if len(results) == 0 {
				e.emptyLookups.Add(1)
			}
			return results, nil
		}
	}

	results, err := e.resolver.Lookup(snap, query)
	if err != nil {
		return nil, err
	}

	e.cache.Put(snap.Generation(), key, results)
	if len(results) == 0 {
		e.emptyLookups.Add(1)
	}
	return results, nil
}

// GetByID returns one procedure by its exact id.
func (e *Engine) GetByID(id string) (*types.Procedure, error) {
	return e.container.Current().Get(types.ProcedureID(strings.TrimSpace(id)))
}

// Children returns the direct children of id in authored order.
func (e *Engine) Children(id string) ([]*types.Procedure, error) {
	return e.container.Current().Children(types.ProcedureID(strings.TrimSpace(id)))
}

// Categories returns the top-level procedures in authored order.
func (e *Engine) Categories() []*types.Procedure {
	return e.container.Current().Categories()
}

// Snapshot returns the live snapshot for read-only use.
func (e *Engine) Snapshot() *store.Snapshot {
	return e.container.Current()
}

// Loaded reports whether a snapshot has been published yet.
func (e *Engine) Loaded() bool {
	return e.container.Loaded()
}

// Watching reports whether a file watcher is driving reloads.
func (e *Engine) Watching() bool {
	return e.watcher != nil
}

// QueryStats counts engine-level query activity.
type QueryStats struct {
	Lookups      int64 `json:"lookups"`
	EmptyResults int64 `json:"empty_results"`
	Reloads      int64 `json:"reloads"`
}

// Queries returns the lookup counters without touching the snapshot.
// Metric scrapers call this on every collection, so it must stay cheap.
func (e *Engine) Queries() QueryStats {
	return QueryStats{
		Lookups:      e.lookups.Load(),
		EmptyResults: e.emptyLookups.Load(),
		Reloads:      e.reloads.Load(),
	}
}

// Stats is a point-in-time view across the whole engine.
type Stats struct {
	Manual *metrics.ManualStats
	Cache  cache.Stats
	Query  QueryStats
	Watch  *indexing.WatchStats
}

// Stats assembles manual, cache, query and watcher statistics.
func (e *Engine) Stats() Stats {
	st := Stats{
		Manual: metrics.Compute(e.container.Current()),
		Cache:  e.cache.Stats(),
		Query:  e.Queries(),
	}
	if e.watcher != nil {
		ws := e.watcher.Stats()
		st.Watch = &ws
	}
	return st
}

// Close stops the watcher and cache maintenance. Safe to call twice.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.watcher != nil {
			err = e.watcher.Stop()
		}
		e.cache.Close()
	})
	return err
}
