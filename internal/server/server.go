package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/quietbeacon/epi/internal/config"
	"github.com/quietbeacon/epi/internal/core"
	"github.com/quietbeacon/epi/internal/debug"
	"github.com/quietbeacon/epi/internal/version"
)

// IndexServer shares one procedure engine between CLI invocations and
// MCP clients over a Unix socket
type IndexServer struct {
	engine       *core.Engine
	cfg          *config.Config
	listener     net.Listener
	server       *http.Server
	metrics      *serverMetrics
	startTime    time.Time
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	mu           sync.RWMutex
	running      bool
	ownsEngine   bool
	socketPath   string // Custom socket path (empty uses default)

	// BuildIDOverride substitutes the reported build id so tests can
	// simulate a server left over from a stale binary.
	BuildIDOverride string
}

// NewIndexServer creates a server that owns its procedure engine
func NewIndexServer(cfg *config.Config) (*IndexServer, error) {
	engine := core.NewEngine(cfg)

	s := &IndexServer{
		engine:       engine,
		cfg:          cfg,
		startTime:    time.Now(),
		shutdownChan: make(chan struct{}),
		ownsEngine:   true,
	}
	s.metrics = newServerMetrics(engine)
	return s, nil
}

// NewIndexServerWithEngine creates a server around an existing engine.
// This is used when the engine is managed externally (e.g., by MCP).
func NewIndexServerWithEngine(cfg *config.Config, engine *core.Engine) (*IndexServer, error) {
	s := &IndexServer{
		engine:       engine,
		cfg:          cfg,
		startTime:    time.Now(),
		shutdownChan: make(chan struct{}),
		ownsEngine:   false,
	}
	s.metrics = newServerMetrics(engine)
	return s, nil
}

// GetSocketPath returns the default path to the Unix socket (for backwards compatibility)
func GetSocketPath() string {
	tmpDir := os.TempDir()
	return filepath.Join(tmpDir, "epi-server.sock")
}

// GetSocketPathForRoot returns a project-specific socket path based on the root directory
// This allows multiple servers to run for different projects simultaneously
func GetSocketPathForRoot(root string) string {
	if root == "" {
		return GetSocketPath()
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return GetSocketPath()
	}
	// Simple hash keeps the socket name unique but deterministic per root
	hash := uint32(0)
	for _, c := range absRoot {
		hash = hash*31 + uint32(c)
	}
	tmpDir := os.TempDir()
	return filepath.Join(tmpDir, fmt.Sprintf("epi-server-%08x.sock", hash))
}

// SetSocketPath sets a custom socket path for this server (used for testing)
func (s *IndexServer) SetSocketPath(path string) {
	s.socketPath = path
}

// GetServerSocketPath returns the socket path this server is using
func (s *IndexServer) GetServerSocketPath() string {
	if s.socketPath != "" {
		return s.socketPath
	}
	if s.cfg != nil && s.cfg.Server.Socket != "" {
		return s.cfg.Server.Socket
	}
	if s.cfg != nil {
		return GetSocketPathForRoot(s.cfg.Project.Root)
	}
	return GetSocketPath()
}

// Start loads the manuals if needed and begins listening for client
// connections
func (s *IndexServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if s.ownsEngine && !s.engine.Loaded() {
		debug.LogServer("Loading manuals from %s...", s.cfg.Project.Root)
		if err := s.engine.Start(context.Background()); err != nil {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return fmt.Errorf("failed to load manuals: %w", err)
		}
		debug.LogServer("Store ready for queries")
	} else if !s.ownsEngine {
		debug.LogServer("Using externally managed engine (ready immediately)")
	}

	// Remove existing socket if present
	socketPath := s.GetServerSocketPath()
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to create socket: %w", err)
	}
	s.listener = listener

	// Make socket accessible to user
	os.Chmod(socketPath, 0600)

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.server = &http.Server{
		Handler: mux,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			debug.LogServer("Server error: %v", err)
		}
	}()

	debug.LogServer("Index server started on %s (pid: %d)", socketPath, os.Getpid())
	debug.LogServer("Project root: %s", s.cfg.Project.Root)

	return nil
}

// registerHandlers sets up RPC endpoints
func (s *IndexServer) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/lookup", s.handleLookup)
	mux.HandleFunc("/procedure", s.handleProcedure)
	mux.HandleFunc("/children", s.handleChildren)
	mux.HandleFunc("/categories", s.handleCategories)
	mux.HandleFunc("/outline", s.handleOutline)
	mux.HandleFunc("/reload", s.handleReload)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/shutdown", s.handleShutdown)
	mux.Handle("/metrics", s.metrics.handler())
}

// handleStatus returns the current store status
func (s *IndexServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.metrics.requests.WithLabelValues("status").Inc()

	snap := s.engine.Snapshot()
	status := StoreStatus{
		Ready:          s.engine.Loaded(),
		ProcedureCount: snap.Count(),
		CategoryCount:  len(snap.Categories()),
		Generation:     snap.Generation(),
		Watching:       s.engine.Watching(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleLookup answers a procedure lookup query
func (s *IndexServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	s.metrics.requests.WithLabelValues("lookup").Inc()

	var req LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	results, err := s.engine.Lookup(req.Query)
	s.metrics.lookupDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		response := LookupResponse{Error: err.Error()}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
		return
	}

	// Limit results if requested
	if req.MaxResults > 0 && len(results) > req.MaxResults {
		results = results[:req.MaxResults]
	}

	response := LookupResponse{
		Results: results,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleProcedure retrieves one procedure by id
func (s *IndexServer) handleProcedure(w http.ResponseWriter, r *http.Request) {
	s.metrics.requests.WithLabelValues("procedure").Inc()

	var req ProcedureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	proc, err := s.engine.GetByID(req.ID)
	if err != nil {
		response := ProcedureResponse{Error: err.Error()}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
		return
	}

	response := ProcedureResponse{
		Procedure: proc,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleChildren retrieves the direct children of a procedure
func (s *IndexServer) handleChildren(w http.ResponseWriter, r *http.Request) {
	s.metrics.requests.WithLabelValues("children").Inc()

	var req ChildrenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	children, err := s.engine.Children(req.ID)
	if err != nil {
		response := ChildrenResponse{Error: err.Error()}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
		return
	}

	response := ChildrenResponse{
		Children: children,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleCategories lists the top-level procedures
func (s *IndexServer) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.metrics.requests.WithLabelValues("categories").Inc()

	response := CategoriesResponse{
		Categories: s.engine.Categories(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleOutline returns every procedure in authored order, parents
// before children
func (s *IndexServer) handleOutline(w http.ResponseWriter, r *http.Request) {
	s.metrics.requests.WithLabelValues("outline").Inc()

	response := OutlineResponse{
		Procedures: s.engine.Snapshot().All(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleReload rebuilds the store from the manual sources. The swap is
// atomic: a failed reload leaves the previous snapshot serving.
func (s *IndexServer) handleReload(w http.ResponseWriter, r *http.Request) {
	s.metrics.requests.WithLabelValues("reload").Inc()

	var req ReloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Allow empty body
		req = ReloadRequest{}
	}

	snap, err := s.engine.Reload(r.Context())
	if err != nil {
		debug.LogServer("Reload failed, keeping previous snapshot: %v", err)
		response := ReloadResponse{
			Success: false,
			Message: err.Error(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
		return
	}

	response := ReloadResponse{
		Success:    true,
		Generation: snap.Generation(),
		Procedures: snap.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleStats returns store statistics including cache and memory usage
func (s *IndexServer) handleStats(w http.ResponseWriter, r *http.Request) {
	s.metrics.requests.WithLabelValues("stats").Inc()

	st := s.engine.Stats()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := StatsResponse{
		ProcedureCount: int(st.Manual.TotalProcedures),
		CategoryCount:  int(st.Manual.TotalCategories),
		StepCount:      int(st.Manual.TotalSteps),
		KeywordCount:   int(st.Manual.KeywordCount),
		SourceCount:    int(st.Manual.Sources),
		Generation:     st.Manual.Generation,
		Fingerprint:    st.Manual.Fingerprint,
		CacheHits:      st.Cache.Hits,
		CacheMisses:    st.Cache.Misses,
		CacheHitRate:   st.Cache.HitRate,
		Lookups:        st.Query.Lookups,
		EmptyLookups:   st.Query.EmptyResults,
		Reloads:        st.Query.Reloads,
		MemoryAllocMB:  float64(memStats.Alloc) / 1024 / 1024,
		MemoryHeapMB:   float64(memStats.HeapAlloc) / 1024 / 1024,
		NumGoroutines:  runtime.NumGoroutine(),
		UptimeSeconds:  time.Since(s.startTime).Seconds(),
	}
	if st.Watch != nil {
		response.WatchedDirs = st.Watch.WatchedDirs
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handlePing responds to health check requests
func (s *IndexServer) handlePing(w http.ResponseWriter, r *http.Request) {
	s.metrics.requests.WithLabelValues("ping").Inc()

	buildID := s.BuildIDOverride
	if buildID == "" {
		buildID = version.BuildID()
	}

	uptime := time.Since(s.startTime).Seconds()
	response := PingResponse{
		Uptime:  uptime,
		Version: version.Version,
		BuildID: buildID,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleShutdown gracefully shuts down the server
func (s *IndexServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.metrics.requests.WithLabelValues("shutdown").Inc()

	var req ShutdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Allow empty body
		req = ShutdownRequest{}
	}

	response := ShutdownResponse{
		Success: true,
		Message: "Server shutting down",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	// Trigger shutdown after response is sent
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.shutdownOnce.Do(func() { close(s.shutdownChan) })
	}()
}

// Wait blocks until the server is shut down
func (s *IndexServer) Wait() {
	<-s.shutdownChan
}

// Shutdown gracefully shuts down the server
func (s *IndexServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	// Wait for goroutines
	s.wg.Wait()

	if s.listener != nil {
		s.listener.Close()
	}

	// Remove socket file
	os.Remove(s.GetServerSocketPath())

	if s.ownsEngine {
		if err := s.engine.Close(); err != nil {
			debug.LogServer("Engine close error: %v", err)
		}
	}

	debug.LogServer("Index server shut down cleanly")

	return nil
}
