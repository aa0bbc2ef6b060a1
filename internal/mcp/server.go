// Package mcp exposes the procedure engine to MCP clients over stdio.
//
// The server registers a small set of tools (lookup, get_procedure,
// list_categories, reload, stats, info) backed by a core.Engine. All
// diagnostics go to a log file because the stdio channel belongs to
// the protocol.
package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quietbeacon/epi/internal/config"
	"github.com/quietbeacon/epi/internal/core"
)

// Server bridges MCP tool calls to the procedure engine.
type Server struct {
	engine     *core.Engine
	ownsEngine bool
	cfg        *config.Config
	log        *DiagnosticLogger
	server     *mcp.Server

	// loadErr remembers why the initial load failed so tools can report
	// it instead of a bare "not loaded". Cleared by a successful reload.
	mu      sync.RWMutex
	loadErr error
}

// NewServer creates an MCP server around engine. A nil engine is
// created from cfg and owned by the server; a provided engine is shared
// and left running on Close.
//
// A failed initial load does not fail construction: the server starts
// anyway so the client can see the error through tool responses and
// recover with the reload tool.
func NewServer(engine *core.Engine, cfg *config.Config) (*Server, error) {
	logger := NewDiagnosticLogger(true)

	ownsEngine := false
	if engine == nil {
		logger.Printf("Creating new engine for project root %s", cfg.Project.Root)
		engine = core.NewEngine(cfg)
		ownsEngine = true
	}

	s := &Server{
		engine:     engine,
		ownsEngine: ownsEngine,
		cfg:        cfg,
		log:        logger,
	}

	if ownsEngine && !engine.Loaded() {
		if err := engine.Start(context.Background()); err != nil {
			logger.Errorf("Initial manual load failed: %v", err)
			s.loadErr = err
		} else {
			snap := engine.Snapshot()
			logger.Printf("Loaded %d procedures (generation %d)", snap.Count(), snap.Generation())
		}
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "epi-mcp-server",
		Version: "0.3.0",
	}, nil)
	s.registerTools()

	logger.Printf("MCP server initialized (owns_engine=%v)", ownsEngine)
	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "info",
		Description: "Get help and examples for any tool. Use 'info' for an overview, 'info <tool>' for specifics, or 'info version' for server version info.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"tool": {
					Type:        "string",
					Description: "Tool name to get information about (e.g. 'lookup', 'get_procedure', 'version')",
				},
			},
		},
	}, s.handleInfo)

	s.server.AddTool(&mcp.Tool{
		Name:        "lookup",
		Description: "Look up emergency procedures by emergency type. Layered matching: exact title match first, then keyword match, then fuzzy match for misspellings. Returns full procedures with ordered steps.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Emergency type to look up (e.g. 'fire', 'hypoxia', 'can't breathe')",
				},
				"max_results": {
					Type:        "integer",
					Description: "Maximum results to return",
				},
			},
			Required: []string{"query"},
		},
	}, s.handleLookup)

	s.server.AddTool(&mcp.Tool{
		Name:        "get_procedure",
		Description: "Fetch one procedure by its exact id, as returned by lookup or list_categories. Optionally includes its direct children.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"id": {
					Type:        "string",
					Description: "Procedure id (e.g. 'medical-support.hypoxia-response')",
				},
				"include_children": {
					Type:        "boolean",
					Description: "Also return the direct children in authored order",
				},
			},
			Required: []string{"id"},
		},
	}, s.handleGetProcedure)

	s.server.AddTool(&mcp.Tool{
		Name:        "list_categories",
		Description: "List the top-level emergency categories in authored order, with child counts.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
		},
	}, s.handleListCategories)

	s.server.AddTool(&mcp.Tool{
		Name:        "reload",
		Description: "Rebuild the procedure store from the manual sources. The previous store keeps serving until the rebuild succeeds.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
		},
	}, s.handleReload)

	s.server.AddTool(&mcp.Tool{
		Name:        "stats",
		Description: "Report store, cache and query statistics: procedure totals, severity distribution, keyword counts, cache hit rate and reload generation.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
		},
	}, s.handleStats)
}

// ensureReady reports an error when no snapshot has been published,
// carrying the original load failure when one is known.
func (s *Server) ensureReady() error {
	if s.engine.Loaded() {
		return nil
	}
	s.mu.RLock()
	loadErr := s.loadErr
	s.mu.RUnlock()
	if loadErr != nil {
		return fmt.Errorf("manual store is not loaded: %v", loadErr)
	}
	return fmt.Errorf("manual store is not loaded")
}

// clearLoadError forgets the recorded initial-load failure.
func (s *Server) clearLoadError() {
	s.mu.Lock()
	s.loadErr = nil
	s.mu.Unlock()
}

// Engine returns the procedure engine backing this server so callers can
// share it with other surfaces, such as the Unix socket server.
func (s *Server) Engine() *core.Engine {
	return s.engine
}

// Start runs the MCP server over stdio until ctx is cancelled or the
// client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.log.Printf("Starting MCP server with stdio transport")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close releases resources held by the server. A shared engine is left
// running for its other surfaces.
func (s *Server) Close() error {
	var err error
	if s.ownsEngine {
		if cerr := s.engine.Close(); cerr != nil {
			s.log.Errorf("Engine close failed: %v", cerr)
			err = cerr
		}
	}
	s.log.Printf("MCP server closed")
	if s.log != nil {
		s.log.Close()
	}
	return err
}
