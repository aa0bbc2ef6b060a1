package server

import (
	"github.com/quietbeacon/epi/internal/search"
	"github.com/quietbeacon/epi/internal/types"
)

// RPC request/response types for client-server communication

// StoreStatus represents the current state of the procedure store
type StoreStatus struct {
	Ready          bool   `json:"ready"`
	ProcedureCount int    `json:"procedure_count"`
	CategoryCount  int    `json:"category_count"`
	Generation     uint64 `json:"generation"`
	Watching       bool   `json:"watching"`
	Error          string `json:"error,omitempty"`
}

// LookupRequest represents a lookup query from a client
type LookupRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

// LookupResponse contains ranked lookup results
type LookupResponse struct {
	Results []search.Result `json:"results"`
	Error   string          `json:"error,omitempty"`
}

// ProcedureRequest requests one procedure by id
type ProcedureRequest struct {
	ID string `json:"id"`
}

// ProcedureResponse contains the requested procedure
type ProcedureResponse struct {
	Procedure *types.Procedure `json:"procedure,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// ChildrenRequest requests the direct children of a procedure
type ChildrenRequest struct {
	ID string `json:"id"`
}

// ChildrenResponse contains children in authored order
type ChildrenResponse struct {
	Children []*types.Procedure `json:"children"`
	Error    string             `json:"error,omitempty"`
}

// CategoriesResponse contains the top-level procedures in authored order
type CategoriesResponse struct {
	Categories []*types.Procedure `json:"categories"`
	Error      string             `json:"error,omitempty"`
}

// OutlineResponse contains every procedure in authored order, parents
// before children, for hierarchy rendering
type OutlineResponse struct {
	Procedures []*types.Procedure `json:"procedures"`
	Error      string             `json:"error,omitempty"`
}

// ReloadRequest triggers a manual reload
type ReloadRequest struct{}

// ReloadResponse reports the outcome of a reload
type ReloadResponse struct {
	Success    bool   `json:"success"`
	Generation uint64 `json:"generation,omitempty"`
	Procedures int    `json:"procedures,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ShutdownRequest requests server shutdown
type ShutdownRequest struct {
	Force bool `json:"force,omitempty"`
}

// ShutdownResponse confirms shutdown
type ShutdownResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// PingRequest for health check
type PingRequest struct{}

// PingResponse confirms server is alive
type PingResponse struct {
	Uptime  float64 `json:"uptime_seconds"`
	Version string  `json:"version"`
	BuildID string  `json:"build_id"`
}

// StatsRequest requests store statistics
type StatsRequest struct{}

// StatsResponse contains store, cache and process statistics
type StatsResponse struct {
	ProcedureCount int    `json:"procedure_count"`
	CategoryCount  int    `json:"category_count"`
	StepCount      int    `json:"step_count"`
	KeywordCount   int    `json:"keyword_count"`
	SourceCount    int    `json:"source_count"`
	Generation     uint64 `json:"generation"`
	Fingerprint    string `json:"fingerprint"`

	CacheHits    int64   `json:"cache_hits"`
	CacheMisses  int64   `json:"cache_misses"`
	CacheHitRate float64 `json:"cache_hit_rate"`

	Lookups      int64 `json:"lookups"`
	EmptyLookups int64 `json:"empty_lookups"`
	Reloads      int64 `json:"reloads"`

	WatchedDirs int `json:"watched_dirs,omitempty"`

	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryHeapMB  float64 `json:"memory_heap_mb"`
	NumGoroutines int     `json:"num_goroutines"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Error         string  `json:"error,omitempty"`
}
