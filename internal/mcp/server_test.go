package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietbeacon/epi/internal/config"
	"github.com/quietbeacon/epi/internal/core"
	"github.com/quietbeacon/epi/internal/search"
	"github.com/quietbeacon/epi/internal/types"
)

const fireManual = `# Fire in Spacecraft
Severity: critical
Keywords: fire, smoke, burning

- Do NOT use water-based extinguishers near electronics.

1. Sound the fire alarm and alert all crew.
2. Don breathing apparatus.
3. Cut power and close ventilation.
4. Discharge the CO2 extinguisher at the base of the flames.
5. Seal the module and monitor for reignition.
`

const medicalManual = `# Astronaut Medical Support
Severity: high
Keywords: medical

- Consult ground medical before administering medication.

## Hypoxia Symptoms
Keywords: o2, dizziness

- Dizziness or light-headedness
- Bluish lips or fingertips

## Hypoxia Response
Keywords: oxygen, breathing

1. Move the astronaut to the nearest oxygen mask.
2. Set the regulator to full flow.

## Panic/Stress Response
Keywords: panic, stress

1. Speak slowly and keep instructions short.
2. Guide a breathing cycle.
`

func writeManual(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func mcpConfig(root string) *config.Config {
	cfg := &config.Config{}
	cfg.Project.Root = root
	cfg.Project.Name = "testproject"
	cfg.Sources.Include = []string{"manuals/**/*.md"}
	cfg.Sources.MaxFileSize = 1 << 20
	cfg.Load.ParallelWorkers = 2
	cfg.Matching.MaxResults = 100
	cfg.Matching.EnableFuzzy = true
	cfg.Matching.FuzzyThreshold = 0.82
	cfg.Matching.FuzzyAlgorithm = "jaro-winkler"
	cfg.Stemming.Enabled = true
	cfg.Stemming.Algorithm = "porter2"
	cfg.Stemming.MinLength = 3
	cfg.Cache.Enabled = true
	cfg.Cache.MaxEntries = 64
	cfg.Cache.TTLMinutes = 5
	return cfg
}

func newTestServer(t *testing.T, root string) *Server {
	t.Helper()
	server, err := NewServer(nil, mcpConfig(root))
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func TestNewServerOwnsEngine(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)

	server := newTestServer(t, root)

	require.NotNil(t, server.engine)
	assert.True(t, server.ownsEngine)
	assert.True(t, server.engine.Loaded())
	assert.NotNil(t, server.server)
	assert.NotNil(t, server.log)
}

func TestNewServerSharedEngine(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)

	cfg := mcpConfig(root)
	engine := core.NewEngine(cfg)
	require.NoError(t, engine.Start(context.Background()))
	defer engine.Close()

	server, err := NewServer(engine, cfg)
	require.NoError(t, err)
	assert.False(t, server.ownsEngine)

	require.NoError(t, server.Close())

	// The shared engine keeps serving after the MCP surface goes away.
	results, err := engine.Lookup("fire")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestLookupTool(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)
	writeManual(t, root, "manuals/medical.md", medicalManual)

	server := newTestServer(t, root)

	raw, err := server.CallTool("lookup", map[string]interface{}{"query": "fire"})
	require.NoError(t, err)

	var resp LookupResult
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	assert.Equal(t, "fire", resp.Query)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, types.ProcedureID("fire-in-spacecraft"), resp.Results[0].Procedure.ID)
	assert.Equal(t, search.RankKeyword, resp.Results[0].Rank)
	assert.Len(t, resp.Results[0].Procedure.Steps, 5)
}

func TestLookupToolOrdering(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/medical.md", medicalManual)

	server := newTestServer(t, root)

	raw, err := server.CallTool("lookup", map[string]interface{}{"query": "hypoxia"})
	require.NoError(t, err)

	var resp LookupResult
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "Hypoxia Symptoms", resp.Results[0].Procedure.Title)
	assert.Equal(t, "Hypoxia Response", resp.Results[1].Procedure.Title)
}

func TestLookupToolMaxResults(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/medical.md", medicalManual)

	server := newTestServer(t, root)

	raw, err := server.CallTool("lookup", map[string]interface{}{
		"query":       "hypoxia",
		"max_results": 1,
	})
	require.NoError(t, err)

	var resp LookupResult
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "Hypoxia Symptoms", resp.Results[0].Procedure.Title)
}

func TestLookupToolBlankQuery(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)

	server := newTestServer(t, root)

	_, err := server.CallTool("lookup", map[string]interface{}{"query": "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is blank")
}

func TestLookupToolUnknownEmergency(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)

	server := newTestServer(t, root)

	raw, err := server.CallTool("lookup", map[string]interface{}{"query": "banana-warp-drive"})
	require.NoError(t, err)

	var resp LookupResult
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	assert.Equal(t, 0, resp.Total)
	assert.Empty(t, resp.Results)
}

func TestGetProcedureTool(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)

	server := newTestServer(t, root)

	raw, err := server.CallTool("get_procedure", map[string]interface{}{"id": "fire-in-spacecraft"})
	require.NoError(t, err)

	var resp ProcedureResult
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	require.NotNil(t, resp.Procedure)
	assert.Equal(t, "Fire in Spacecraft", resp.Procedure.Title)
	assert.Equal(t, types.SeverityCritical, resp.Procedure.Severity)
	assert.Len(t, resp.Procedure.Steps, 5)
	assert.Nil(t, resp.Children)
}

func TestGetProcedureToolWithChildren(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/medical.md", medicalManual)

	server := newTestServer(t, root)

	raw, err := server.CallTool("get_procedure", map[string]interface{}{
		"id":               "astronaut-medical-support",
		"include_children": true,
	})
	require.NoError(t, err)

	var resp ProcedureResult
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	require.Len(t, resp.Children, 3)
	assert.Equal(t, "Hypoxia Symptoms", resp.Children[0].Title)
	assert.Equal(t, "Hypoxia Response", resp.Children[1].Title)
	assert.Equal(t, "Panic/Stress Response", resp.Children[2].Title)
}

func TestGetProcedureToolNotFound(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)

	server := newTestServer(t, root)

	_, err := server.CallTool("get_procedure", map[string]interface{}{"id": "no-such-procedure"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no procedure with id")
}

func TestGetProcedureToolMissingID(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)

	server := newTestServer(t, root)

	_, err := server.CallTool("get_procedure", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
}

func TestListCategoriesTool(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)
	writeManual(t, root, "manuals/medical.md", medicalManual)

	server := newTestServer(t, root)

	raw, err := server.CallTool("list_categories", map[string]interface{}{})
	require.NoError(t, err)

	var resp struct {
		Total      int               `json:"total"`
		Categories []CategorySummary `json:"categories"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "fire-in-spacecraft", resp.Categories[0].ID)
	assert.Equal(t, 0, resp.Categories[0].ChildCount)
	assert.Equal(t, "astronaut-medical-support", resp.Categories[1].ID)
	assert.Equal(t, "high", resp.Categories[1].Severity)
	assert.Equal(t, 3, resp.Categories[1].ChildCount)
}

func TestReloadTool(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)

	server := newTestServer(t, root)

	writeManual(t, root, "manuals/drill.md", "# Evacuation Drill\nKeywords: drill\n\n1. Proceed to the assembly point.\n")

	raw, err := server.CallTool("reload", map[string]interface{}{})
	require.NoError(t, err)

	var resp struct {
		Success    bool   `json:"success"`
		Generation uint64 `json:"generation"`
		Procedures int    `json:"procedures"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, uint64(2), resp.Generation)
	assert.Equal(t, 2, resp.Procedures)

	lookupRaw, err := server.CallTool("lookup", map[string]interface{}{"query": "drill"})
	require.NoError(t, err)
	var lookupResp LookupResult
	require.NoError(t, json.Unmarshal([]byte(lookupRaw), &lookupResp))
	assert.Equal(t, 1, lookupResp.Total)
}

func TestReloadToolFailureKeepsStore(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)

	server := newTestServer(t, root)

	// Same heading in a second file collides on the derived id.
	writeManual(t, root, "manuals/fire2.md", fireManual)

	_, err := server.CallTool("reload", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate_identifier")

	// The previous snapshot keeps serving.
	raw, err := server.CallTool("lookup", map[string]interface{}{"query": "fire"})
	require.NoError(t, err)
	var resp LookupResult
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	assert.Equal(t, 1, resp.Total)
}

func TestStatsTool(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)
	writeManual(t, root, "manuals/medical.md", medicalManual)

	server := newTestServer(t, root)

	_, err := server.CallTool("lookup", map[string]interface{}{"query": "fire"})
	require.NoError(t, err)

	raw, err := server.CallTool("stats", map[string]interface{}{})
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))

	storeStats, ok := resp["store"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(5), storeStats["procedures"])
	assert.Equal(t, float64(2), storeStats["categories"])
	assert.Equal(t, float64(1), storeStats["generation"])
	assert.True(t, storeStats["loaded"].(bool))

	cacheStats, ok := resp["cache"].(map[string]interface{})
	require.True(t, ok)
	assert.True(t, cacheStats["enabled"].(bool))

	queryStats, ok := resp["queries"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), queryStats["lookups"])

	assert.Equal(t, false, resp["watching"])
}

func TestInfoToolOverview(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)

	server := newTestServer(t, root)

	raw, err := server.CallTool("info", map[string]interface{}{})
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	assert.Equal(t, "epi-mcp-server", resp["name"])

	tools, ok := resp["tools"].(map[string]interface{})
	require.True(t, ok)
	for _, name := range []string{"lookup", "get_procedure", "list_categories", "reload", "stats", "info"} {
		assert.Contains(t, tools, name)
	}
}

func TestInfoToolVersion(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)

	server := newTestServer(t, root)

	raw, err := server.CallTool("info", map[string]interface{}{"tool": "version"})
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	assert.Contains(t, resp["server_version"], "Emergency Procedure Index")
	assert.NotEmpty(t, resp["build_id"])
}

func TestInfoToolUnknown(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)

	server := newTestServer(t, root)

	_, err := server.CallTool("info", map[string]interface{}{"tool": "frobnicate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestCallToolUnknownTool(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/fire.md", fireManual)

	server := newTestServer(t, root)

	_, err := server.CallTool("bogus", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestServerSurvivesFailedInitialLoad(t *testing.T) {
	root := t.TempDir()
	writeManual(t, root, "manuals/broken.md", "# Hollow\n\nprose only, no steps and no notes\n")

	// Construction succeeds so the client can diagnose and recover.
	server := newTestServer(t, root)
	assert.False(t, server.engine.Loaded())

	_, err := server.CallTool("lookup", map[string]interface{}{"query": "fire"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not loaded")

	// Fixing the manuals and reloading brings the store up.
	writeManual(t, root, "manuals/broken.md", fireManual)

	_, err = server.CallTool("reload", map[string]interface{}{})
	require.NoError(t, err)

	raw, err := server.CallTool("lookup", map[string]interface{}{"query": "fire"})
	require.NoError(t, err)
	var resp LookupResult
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	assert.Equal(t, 1, resp.Total)
}
