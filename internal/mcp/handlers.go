package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quietbeacon/epi/internal/search"
	"github.com/quietbeacon/epi/internal/types"
	"github.com/quietbeacon/epi/internal/version"
)

// LookupParams are the arguments of the lookup tool.
type LookupParams struct {
	Query string `json:"query"`
	Max   int    `json:"max_results,omitempty"`
}

// GetProcedureParams are the arguments of the get_procedure tool.
type GetProcedureParams struct {
	ID              string `json:"id"`
	IncludeChildren bool   `json:"include_children,omitempty"`
}

// InfoParams are the arguments of the info tool.
type InfoParams struct {
	Tool string `json:"tool,omitempty"`
}

// LookupResult is the lookup tool response payload.
type LookupResult struct {
	Query   string          `json:"query"`
	Total   int             `json:"total"`
	Results []search.Result `json:"results"`
}

// ProcedureResult is the get_procedure tool response payload.
type ProcedureResult struct {
	Procedure *types.Procedure   `json:"procedure"`
	Children  []*types.Procedure `json:"children,omitempty"`
}

// CategorySummary is one entry of the list_categories response.
type CategorySummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Severity   string `json:"severity,omitempty"`
	ChildCount int    `json:"child_count"`
}

// handleLookup resolves an emergency-type query against the store.
func (s *Server) handleLookup(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params LookupParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createSmartErrorResponse("lookup", fmt.Errorf("invalid parameters: %w", err), map[string]interface{}{
			"usage": `{"query": "fire"} or {"query": "hypoxia", "max_results": 5}`,
		})
	}

	if err := s.ensureReady(); err != nil {
		return createSmartErrorResponse("lookup", err, nil)
	}

	results, err := s.engine.Lookup(params.Query)
	if err != nil {
		s.log.Printf("Lookup %q failed: %v", params.Query, err)
		return createSmartErrorResponse("lookup", err, map[string]interface{}{
			"query": params.Query,
		})
	}
	if params.Max > 0 && len(results) > params.Max {
		results = results[:params.Max]
	}
	if results == nil {
		results = []search.Result{}
	}

	return createJSONResponse(&LookupResult{
		Query:   params.Query,
		Total:   len(results),
		Results: results,
	})
}

// handleGetProcedure fetches one procedure by exact id.
func (s *Server) handleGetProcedure(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params GetProcedureParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createSmartErrorResponse("get_procedure", fmt.Errorf("invalid parameters: %w", err), map[string]interface{}{
			"usage": `{"id": "medical-support.hypoxia-response"} or {"id": "fire-response", "include_children": true}`,
		})
	}
	if strings.TrimSpace(params.ID) == "" {
		return createSmartErrorResponse("get_procedure", fmt.Errorf("id is required"), nil)
	}

	if err := s.ensureReady(); err != nil {
		return createSmartErrorResponse("get_procedure", err, nil)
	}

	proc, err := s.engine.GetByID(params.ID)
	if err != nil {
		return createSmartErrorResponse("get_procedure", err, map[string]interface{}{
			"id": params.ID,
		})
	}

	payload := &ProcedureResult{Procedure: proc}
	if params.IncludeChildren {
		children, err := s.engine.Children(params.ID)
		if err != nil {
			return createSmartErrorResponse("get_procedure", err, map[string]interface{}{
				"id": params.ID,
			})
		}
		payload.Children = children
	}

	return createJSONResponse(payload)
}

// handleListCategories lists the top-level categories in authored order.
func (s *Server) handleListCategories(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ensureReady(); err != nil {
		return createSmartErrorResponse("list_categories", err, nil)
	}

	categories := s.engine.Categories()
	summaries := make([]CategorySummary, 0, len(categories))
	for _, cat := range categories {
		children, err := s.engine.Children(string(cat.ID))
		if err != nil {
			return createSmartErrorResponse("list_categories", err, nil)
		}
		summaries = append(summaries, CategorySummary{
			ID:         string(cat.ID),
			Title:      cat.Title,
			Severity:   string(cat.Severity),
			ChildCount: len(children),
		})
	}

	return createJSONResponse(map[string]interface{}{
		"total":      len(summaries),
		"categories": summaries,
	})
}

// handleReload rebuilds the store from the manual sources.
func (s *Server) handleReload(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.engine.Reload(ctx)
	if err != nil {
		s.log.Errorf("Reload failed, previous snapshot keeps serving: %v", err)
		return createSmartErrorResponse("reload", err, nil)
	}
	s.clearLoadError()

	s.log.Printf("Reload complete: generation=%d procedures=%d", snap.Generation(), snap.Count())
	return createJSONResponse(map[string]interface{}{
		"success":    true,
		"generation": snap.Generation(),
		"procedures": snap.Count(),
	})
}

// handleStats reports store, cache and query statistics.
func (s *Server) handleStats(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.engine.Stats()

	categories := make([]map[string]interface{}, 0, len(st.Manual.Categories))
	for _, cat := range st.Manual.Categories {
		categories = append(categories, map[string]interface{}{
			"id":         cat.ID,
			"title":      cat.Title,
			"severity":   cat.Severity,
			"procedures": cat.Procedures,
			"steps":      cat.Steps,
		})
	}

	data := map[string]interface{}{
		"store": map[string]interface{}{
			"loaded":        s.engine.Loaded(),
			"procedures":    st.Manual.TotalProcedures,
			"categories":    st.Manual.TotalCategories,
			"steps":         st.Manual.TotalSteps,
			"notes":         st.Manual.TotalNotes,
			"questions":     st.Manual.TotalQuestions,
			"max_depth":     st.Manual.MaxDepth,
			"severity":      st.Manual.SeverityDistribution,
			"by_category":   categories,
			"keywords":      st.Manual.KeywordCount,
			"vocabulary":    st.Manual.VocabularySize,
			"generation":    st.Manual.Generation,
			"fingerprint":   st.Manual.Fingerprint,
			"sources":       st.Manual.Sources,
			"load_warnings": st.Manual.Warnings,
			"built_at":      st.Manual.BuiltAt,
		},
		"cache": map[string]interface{}{
			"enabled":  st.Cache.Enabled,
			"entries":  st.Cache.Entries,
			"hits":     st.Cache.Hits,
			"misses":   st.Cache.Misses,
			"hit_rate": st.Cache.HitRate,
		},
		"queries":  st.Query,
		"watching": s.engine.Watching(),
	}
	if st.Watch != nil {
		data["watch"] = st.Watch
	}

	return createJSONResponse(data)
}

// handleInfo provides help and usage information for the tools.
func (s *Server) handleInfo(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params InfoParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createSmartErrorResponse("info", fmt.Errorf("invalid parameters: %w", err), map[string]interface{}{
			"usage": `{"tool": "lookup"} or {"tool": "version"}`,
		})
	}

	tool := strings.ToLower(strings.TrimSpace(params.Tool))

	switch tool {
	case "version":
		return createJSONResponse(map[string]interface{}{
			"name":           "version",
			"server_name":    "epi-mcp-server",
			"server_version": version.FullInfo(),
			"build_id":       version.BuildID(),
			"go_version":     runtime.Version(),
			"platform":       runtime.GOOS + "/" + runtime.GOARCH,
			"capabilities": []string{
				"stdio_transport",
				"layered_lookup",
				"fuzzy_matching",
				"keyword_stemming",
				"atomic_reload",
				"result_caching",
			},
		})

	case "lookup":
		return createJSONResponse(map[string]interface{}{
			"name":        "lookup",
			"description": operationHelp("lookup"),
			"parameters": map[string]string{
				"query":       "REQUIRED: emergency type to look up (string)",
				"max_results": "Maximum results to return (integer)",
			},
			"matching": []string{
				"Exact: query equals a procedure title (case-insensitive)",
				"Keyword: query tokens hit title words or author keywords, stemmed",
				"Fuzzy: near-miss spellings ('oxigen' finds 'oxygen'), flagged with a warning",
			},
			"examples": []string{
				`{"query": "fire"}`,
				`{"query": "can't breathe"}`,
				`{"query": "hypoxia", "max_results": 3}`,
			},
			"notes": []string{
				"A blank query is an error; an unknown emergency type returns an empty result set",
				"Results are ordered by match rank, then score, then authored position",
			},
		})

	case "get_procedure":
		return createJSONResponse(map[string]interface{}{
			"name":        "get_procedure",
			"description": operationHelp("get_procedure"),
			"parameters": map[string]string{
				"id":               "REQUIRED: procedure id from lookup or list_categories",
				"include_children": "Also return direct children in authored order (boolean)",
			},
			"examples": []string{
				`{"id": "fire-response"}`,
				`{"id": "medical-support", "include_children": true}`,
			},
		})

	case "list_categories":
		return createJSONResponse(map[string]interface{}{
			"name":        "list_categories",
			"description": operationHelp("list_categories"),
			"parameters":  map[string]string{},
			"examples":    []string{`{}`},
		})

	case "reload":
		return createJSONResponse(map[string]interface{}{
			"name":        "reload",
			"description": operationHelp("reload"),
			"parameters":  map[string]string{},
			"notes": []string{
				"Reload is atomic: readers never see a partial store",
				"On failure the previous store keeps serving and the error is returned",
			},
		})

	case "stats":
		return createJSONResponse(map[string]interface{}{
			"name":        "stats",
			"description": operationHelp("stats"),
			"parameters":  map[string]string{},
		})

	case "info", "":
		return createJSONResponse(map[string]interface{}{
			"name":        "epi-mcp-server",
			"version":     version.Info(),
			"description": "Deterministic emergency-procedure lookup over the loaded manual set.",
			"tools": map[string]string{
				"lookup":          operationHelp("lookup"),
				"get_procedure":   operationHelp("get_procedure"),
				"list_categories": operationHelp("list_categories"),
				"reload":          operationHelp("reload"),
				"stats":           operationHelp("stats"),
				"info":            operationHelp("info"),
			},
			"start_here": []string{
				`lookup {"query": "fire"} to find procedures for an emergency type`,
				`list_categories {} to see the manual tree roots`,
				`info {"tool": "lookup"} for matching semantics`,
			},
		})

	default:
		return createSmartErrorResponse("info", fmt.Errorf("unknown tool %q", tool), map[string]interface{}{
			"available": []string{"lookup", "get_procedure", "list_categories", "reload", "stats", "info", "version"},
		})
	}
}
