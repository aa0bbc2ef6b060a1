package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/quietbeacon/epi/internal/server"
	"github.com/quietbeacon/epi/internal/version"

	"github.com/urfave/cli/v2"
)

// ServerStatsReport represents the server stats for JSON output
type ServerStatsReport struct {
	Timestamp      time.Time `json:"timestamp"`
	Ready          bool      `json:"ready"`
	ProcedureCount int       `json:"procedure_count"`
	CategoryCount  int       `json:"category_count"`
	StepCount      int       `json:"step_count"`
	KeywordCount   int       `json:"keyword_count"`
	SourceCount    int       `json:"source_count"`
	Generation     uint64    `json:"generation"`
	Fingerprint    string    `json:"fingerprint"`
	CacheHits      int64     `json:"cache_hits"`
	CacheMisses    int64     `json:"cache_misses"`
	CacheHitRate   float64   `json:"cache_hit_rate"`
	Lookups        int64     `json:"lookups"`
	EmptyLookups   int64     `json:"empty_lookups"`
	Reloads        int64     `json:"reloads"`
	WatchedDirs    int       `json:"watched_dirs,omitempty"`
	MemoryAllocMB  float64   `json:"memory_alloc_mb"`
	MemoryHeapMB   float64   `json:"memory_heap_mb"`
	NumGoroutines  int       `json:"num_goroutines"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
}

// statsCommand shows store, cache and query statistics from the server,
// starting one when none is running
func statsCommand(c *cli.Context) error {
	jsonOutput := c.Bool("json")

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := ensureServerRunning(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	stats, err := client.GetStats()
	if err != nil {
		return fmt.Errorf("failed to get server stats: %w", err)
	}

	status, err := client.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get server status: %w", err)
	}

	if jsonOutput {
		return outputServerStatsJSON(stats, status)
	}

	return outputServerStatsHuman(stats, status)
}

// statusCommand reports whether a server is running for this project. It
// never starts one; that is what makes it safe to call from scripts.
func statusCommand(c *cli.Context) error {
	jsonOutput := c.Bool("json")

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	socketPath := server.GetSocketPathForRoot(cfg.Project.Root)
	client := server.NewClientWithSocket(socketPath)

	if !client.IsServerRunning() {
		if jsonOutput {
			out := map[string]interface{}{
				"running": false,
				"root":    cfg.Project.Root,
				"socket":  socketPath,
			}
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(out)
		}
		fmt.Printf("No procedure server is running for root: %s\n", cfg.Project.Root)
		fmt.Printf("Start one with 'epi server', or run any lookup to start it automatically.\n")
		return nil
	}

	ping, err := client.Ping()
	if err != nil {
		return fmt.Errorf("failed to ping server: %w", err)
	}

	status, err := client.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get server status: %w", err)
	}

	if jsonOutput {
		out := map[string]interface{}{
			"running":         true,
			"root":            cfg.Project.Root,
			"socket":          socketPath,
			"ready":           status.Ready,
			"procedure_count": status.ProcedureCount,
			"category_count":  status.CategoryCount,
			"generation":      status.Generation,
			"watching":        status.Watching,
			"uptime_seconds":  ping.Uptime,
			"version":         ping.Version,
			"build_id":        ping.BuildID,
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}

	fmt.Printf("Procedure server is running\n")
	fmt.Printf("  Root:             %s\n", cfg.Project.Root)
	fmt.Printf("  Socket:           %s\n", socketPath)
	fmt.Printf("  Version:          %s\n", ping.Version)
	fmt.Printf("  Uptime:           %s\n", formatSeconds(ping.Uptime))
	if status.Ready {
		fmt.Printf("  Store:            ready (%d procedures in %d categories, generation %d)\n",
			status.ProcedureCount, status.CategoryCount, status.Generation)
	} else if status.Error != "" {
		fmt.Printf("  Store:            not ready (%s)\n", status.Error)
	} else {
		fmt.Printf("  Store:            not ready\n")
	}
	fmt.Printf("  Watching:         %t\n", status.Watching)

	if ping.BuildID != "" && ping.BuildID != version.BuildID() {
		fmt.Printf("\nNote: the server was started by a different build of epi and will be\n")
		fmt.Printf("replaced automatically on the next lookup.\n")
	}

	return nil
}

// outputServerStatsJSON outputs server stats as JSON
func outputServerStatsJSON(stats *server.StatsResponse, status *server.StoreStatus) error {
	report := ServerStatsReport{
		Timestamp:      time.Now(),
		Ready:          status.Ready,
		ProcedureCount: stats.ProcedureCount,
		CategoryCount:  stats.CategoryCount,
		StepCount:      stats.StepCount,
		KeywordCount:   stats.KeywordCount,
		SourceCount:    stats.SourceCount,
		Generation:     stats.Generation,
		Fingerprint:    stats.Fingerprint,
		CacheHits:      stats.CacheHits,
		CacheMisses:    stats.CacheMisses,
		CacheHitRate:   stats.CacheHitRate,
		Lookups:        stats.Lookups,
		EmptyLookups:   stats.EmptyLookups,
		Reloads:        stats.Reloads,
		WatchedDirs:    stats.WatchedDirs,
		MemoryAllocMB:  stats.MemoryAllocMB,
		MemoryHeapMB:   stats.MemoryHeapMB,
		NumGoroutines:  stats.NumGoroutines,
		UptimeSeconds:  stats.UptimeSeconds,
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// outputServerStatsHuman outputs server stats in human-readable format
func outputServerStatsHuman(stats *server.StatsResponse, status *server.StoreStatus) error {
	fmt.Printf("Emergency Procedure Index Server Stats\n")
	fmt.Printf("======================================\n\n")

	if status.Ready {
		fmt.Printf("Status: Ready\n")
	} else {
		fmt.Printf("Status: Not Ready\n")
	}

	fmt.Printf("\nStore:\n")
	fmt.Printf("  Procedures:       %d\n", stats.ProcedureCount)
	fmt.Printf("  Categories:       %d\n", stats.CategoryCount)
	fmt.Printf("  Steps:            %d\n", stats.StepCount)
	fmt.Printf("  Keywords:         %d\n", stats.KeywordCount)
	fmt.Printf("  Source files:     %d\n", stats.SourceCount)
	fmt.Printf("  Generation:       %d\n", stats.Generation)
	if stats.Fingerprint != "" {
		fmt.Printf("  Fingerprint:      %s\n", stats.Fingerprint)
	}

	fmt.Printf("\nQueries:\n")
	fmt.Printf("  Lookups:          %d\n", stats.Lookups)
	fmt.Printf("  Empty results:    %d\n", stats.EmptyLookups)
	fmt.Printf("  Reloads:          %d\n", stats.Reloads)

	fmt.Printf("\nCache:\n")
	fmt.Printf("  Hits:             %d\n", stats.CacheHits)
	fmt.Printf("  Misses:           %d\n", stats.CacheMisses)
	fmt.Printf("  Hit rate:         %.1f%%\n", stats.CacheHitRate*100)

	if stats.WatchedDirs > 0 {
		fmt.Printf("\nWatch:\n")
		fmt.Printf("  Watched dirs:     %d\n", stats.WatchedDirs)
	}

	fmt.Printf("\nServer Runtime:\n")
	fmt.Printf("  Uptime:           %s\n", formatSeconds(stats.UptimeSeconds))
	fmt.Printf("  Goroutines:       %d\n", stats.NumGoroutines)
	fmt.Printf("  Memory allocated: %.1f MB\n", stats.MemoryAllocMB)
	fmt.Printf("  Memory heap:      %.1f MB\n", stats.MemoryHeapMB)

	return nil
}

// formatSeconds formats a seconds duration as a human-readable string
func formatSeconds(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.0f seconds", seconds)
	}
	minutes := seconds / 60.0
	if minutes < 60 {
		return fmt.Sprintf("%.1f minutes", minutes)
	}
	hours := minutes / 60.0
	if hours < 24 {
		return fmt.Sprintf("%.1f hours", hours)
	}
	days := hours / 24.0
	return fmt.Sprintf("%.1f days", days)
}
