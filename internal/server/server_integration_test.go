package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietbeacon/epi/internal/config"
	"github.com/quietbeacon/epi/internal/core"
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

// getTestSocketPath returns a unique socket path for the given test
func getTestSocketPath(t *testing.T) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("epi-test-%s.sock", t.Name()))
}

func writeManual(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func serverConfig(root string) *config.Config {
	cfg := &config.Config{}
	cfg.Project.Root = root
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

// startTestServer starts a server on a test socket and registers
// cleanup for it
func startTestServer(t *testing.T, cfg *config.Config) (*IndexServer, *Client) {
	t.Helper()
	socketPath := getTestSocketPath(t)

	srv, err := NewIndexServer(cfg)
	require.NoError(t, err)
	srv.SetSocketPath(socketPath)
	require.NoError(t, srv.Start())

	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		os.Remove(socketPath)
	})

	return srv, NewClientWithSocket(socketPath)
}

func TestServerIntegration_BasicLifecycle(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/fire.md", fireManual)
	writeManual(t, testDir, "manuals/medical.md", medicalManual)

	socketPath := getTestSocketPath(t)
	defer os.Remove(socketPath)

	srv, err := NewIndexServer(serverConfig(testDir))
	require.NoError(t, err)
	srv.SetSocketPath(socketPath)
	require.NoError(t, srv.Start())

	client := NewClientWithSocket(socketPath)
	require.True(t, client.IsServerRunning(), "Server should be running")
	require.NoError(t, client.WaitForReady(5*time.Second))

	status, err := client.GetStatus()
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, 5, status.ProcedureCount)
	assert.Equal(t, 2, status.CategoryCount)
	assert.Equal(t, uint64(1), status.Generation)
	assert.False(t, status.Watching)

	results, err := client.Lookup("fire", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Fire in Spacecraft", results[0].Procedure.Title)
	assert.Len(t, results[0].Procedure.Steps, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	assert.False(t, client.IsServerRunning(), "Server should be stopped")
}

func TestServerIntegration_StartFailsOnBadManuals(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/empty.md", "# Hollow\n\nprose only\n")

	socketPath := getTestSocketPath(t)
	defer os.Remove(socketPath)

	srv, err := NewIndexServer(serverConfig(testDir))
	require.NoError(t, err)
	srv.SetSocketPath(socketPath)

	err = srv.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load manuals")

	// A failed start releases the running flag, so a retry surfaces the
	// same load error instead of "already running".
	err = srv.Start()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "already running")
}

func TestServerIntegration_ProcedureEndpoint(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/medical.md", medicalManual)

	_, client := startTestServer(t, serverConfig(testDir))

	proc, err := client.GetProcedure("astronaut-medical-support.hypoxia-response")
	require.NoError(t, err)
	assert.Equal(t, "Hypoxia Response", proc.Title)
	assert.Len(t, proc.Steps, 2)

	_, err = client.GetProcedure("no-such-procedure")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no procedure")
}

func TestServerIntegration_ChildrenEndpoint(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/medical.md", medicalManual)

	_, client := startTestServer(t, serverConfig(testDir))

	children, err := client.GetChildren("astronaut-medical-support")
	require.NoError(t, err)
	require.Len(t, children, 3)
	assert.Equal(t, "Hypoxia Symptoms", children[0].Title)
	assert.Equal(t, "Hypoxia Response", children[1].Title)
	assert.Equal(t, "Panic/Stress Response", children[2].Title)
}

func TestServerIntegration_CategoriesEndpoint(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/fire.md", fireManual)
	writeManual(t, testDir, "manuals/medical.md", medicalManual)

	_, client := startTestServer(t, serverConfig(testDir))

	categories, err := client.GetCategories()
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Fire in Spacecraft", categories[0].Title)
	assert.Equal(t, "Astronaut Medical Support", categories[1].Title)
}

func TestServerIntegration_OutlineEndpoint(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/fire.md", fireManual)
	writeManual(t, testDir, "manuals/medical.md", medicalManual)

	_, client := startTestServer(t, serverConfig(testDir))

	procs, err := client.GetOutline()
	require.NoError(t, err)
	require.Len(t, procs, 5)

	// Authored order, parents before children
	assert.Equal(t, "Fire in Spacecraft", procs[0].Title)
	assert.Equal(t, "Astronaut Medical Support", procs[1].Title)
	assert.Equal(t, "Hypoxia Symptoms", procs[2].Title)
	assert.True(t, procs[2].ParentID == procs[1].ID)
}

func TestServerIntegration_InvalidQuery(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/fire.md", fireManual)

	_, client := startTestServer(t, serverConfig(testDir))

	_, err := client.Lookup("   ", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is blank")

	// A query that matches nothing is an empty result, not an error.
	results, err := client.Lookup("banana-warp-drive", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestServerIntegration_LookupMaxResults(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/medical.md", medicalManual)

	_, client := startTestServer(t, serverConfig(testDir))

	all, err := client.Lookup("hypoxia", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	capped, err := client.Lookup("hypoxia", 1)
	require.NoError(t, err)
	require.Len(t, capped, 1)
	assert.Equal(t, all[0].Procedure.ID, capped[0].Procedure.ID)
}

func TestServerIntegration_ReloadCommand(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/fire.md", fireManual)

	_, client := startTestServer(t, serverConfig(testDir))

	status, err := client.GetStatus()
	require.NoError(t, err)
	require.Equal(t, uint64(1), status.Generation)

	writeManual(t, testDir, "manuals/medical.md", medicalManual)

	reload, err := client.Reload()
	require.NoError(t, err)
	assert.True(t, reload.Success)
	assert.Equal(t, uint64(2), reload.Generation)
	assert.Equal(t, 5, reload.Procedures)

	proc, err := client.GetProcedure("astronaut-medical-support")
	require.NoError(t, err)
	assert.Equal(t, "Astronaut Medical Support", proc.Title)
}

func TestServerIntegration_ReloadFailureKeepsStore(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/fire.md", fireManual)

	_, client := startTestServer(t, serverConfig(testDir))

	// A second copy of the same manual collides on every id.
	writeManual(t, testDir, "manuals/fire2.md", fireManual)

	_, err := client.Reload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate_identifier")

	// Old snapshot keeps serving.
	status, err := client.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), status.Generation)

	results, err := client.Lookup("fire", 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestServerIntegration_MultipleClients(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/fire.md", fireManual)
	writeManual(t, testDir, "manuals/medical.md", medicalManual)

	srv, _ := startTestServer(t, serverConfig(testDir))
	socketPath := srv.GetServerSocketPath()

	for i := 0; i < 3; i++ {
		client := NewClientWithSocket(socketPath)
		require.True(t, client.IsServerRunning(), "client %d should reach the server", i)

		results, err := client.Lookup("fire", 0)
		require.NoError(t, err)
		assert.Len(t, results, 1, "client %d", i)
	}
}

func TestServerIntegration_ConcurrentLookups(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/fire.md", fireManual)
	writeManual(t, testDir, "manuals/medical.md", medicalManual)

	_, client := startTestServer(t, serverConfig(testDir))

	queries := []string{"fire", "hypoxia", "panic", "smoke", "medical"}
	var wg sync.WaitGroup
	errs := make(chan error, len(queries)*4)

	for i := 0; i < 4; i++ {
		for _, q := range queries {
			wg.Add(1)
			go func(query string) {
				defer wg.Done()
				if _, err := client.Lookup(query, 0); err != nil {
					errs <- err
				}
			}(q)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent lookup failed: %v", err)
	}
}

func TestServerIntegration_ExternalEngine(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/fire.md", fireManual)

	cfg := serverConfig(testDir)
	engine := core.NewEngine(cfg)
	require.NoError(t, engine.Start(context.Background()))
	defer engine.Close()

	socketPath := getTestSocketPath(t)
	defer os.Remove(socketPath)

	srv, err := NewIndexServerWithEngine(cfg, engine)
	require.NoError(t, err)
	srv.SetSocketPath(socketPath)
	require.NoError(t, srv.Start())

	client := NewClientWithSocket(socketPath)
	results, err := client.Lookup("fire", 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	require.NoError(t, srv.Shutdown(context.Background()))

	// The externally managed engine must survive server shutdown.
	direct, err := engine.Lookup("fire")
	require.NoError(t, err)
	assert.Len(t, direct, 1)
}

func TestServerIntegration_PingEndpoint(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/fire.md", fireManual)

	_, client := startTestServer(t, serverConfig(testDir))

	ping, err := client.Ping()
	require.NoError(t, err)
	assert.NotEmpty(t, ping.Version)
	assert.NotEmpty(t, ping.BuildID)
	assert.GreaterOrEqual(t, ping.Uptime, 0.0)
}

func TestServerIntegration_StatsEndpoint(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/fire.md", fireManual)
	writeManual(t, testDir, "manuals/medical.md", medicalManual)

	_, client := startTestServer(t, serverConfig(testDir))

	// Generate some query traffic first.
	_, err := client.Lookup("fire", 0)
	require.NoError(t, err)
	_, err = client.Lookup("fire", 0)
	require.NoError(t, err)

	stats, err := client.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 5, stats.ProcedureCount)
	assert.Equal(t, 2, stats.CategoryCount)
	assert.Equal(t, 2, stats.SourceCount)
	assert.Equal(t, uint64(1), stats.Generation)
	assert.NotEmpty(t, stats.Fingerprint)
	assert.Equal(t, int64(2), stats.Lookups)
	assert.GreaterOrEqual(t, stats.CacheHits, int64(1))
	assert.Greater(t, stats.MemoryAllocMB, 0.0)
	assert.Greater(t, stats.NumGoroutines, 0)
}

func TestServerIntegration_MetricsEndpoint(t *testing.T) {
	testDir := t.TempDir()
	writeManual(t, testDir, "manuals/fire.md", fireManual)

	_, client := startTestServer(t, serverConfig(testDir))

	// Counter vectors only publish after their first increment.
	_, err := client.Lookup("fire", 0)
	require.NoError(t, err)

	resp, err := client.httpClient.Get("http://unix/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.True(t, strings.Contains(text, `epi_server_requests_total{endpoint="lookup"}`), "missing request counter:\n%s", text)
	assert.Contains(t, text, "epi_store_procedures")
	assert.Contains(t, text, "epi_store_generation")
	assert.Contains(t, text, "epi_engine_lookups_total")
	assert.Contains(t, text, "epi_server_lookup_duration_seconds")
}

func TestServerIntegration_SocketPathFromConfig(t *testing.T) {
	cfg := serverConfig(t.TempDir())
	cfg.Server.Socket = "/tmp/epi-custom.sock"

	srv, err := NewIndexServer(cfg)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/epi-custom.sock", srv.GetServerSocketPath())

	srv.SetSocketPath("/tmp/epi-override.sock")
	assert.Equal(t, "/tmp/epi-override.sock", srv.GetServerSocketPath())
}
