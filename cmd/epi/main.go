package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/quietbeacon/epi/internal/config"
	"github.com/quietbeacon/epi/internal/core"
	"github.com/quietbeacon/epi/internal/debug"
	"github.com/quietbeacon/epi/internal/mcp"
	"github.com/quietbeacon/epi/internal/version"

	"github.com/urfave/cli/v2"
)

var Version = version.Version // Use centralized version management

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	configPath := c.String("config")
	rootFlag := c.String("root")

	// If root is specified and the config path is default, look for the
	// config file in the root directory. A custom --config path is searched
	// by its containing directory.
	searchDir := ""
	if configPath != config.ConfigFileName {
		searchDir = filepath.Dir(configPath)
	} else if rootFlag != "" {
		searchDir = rootFlag
	}

	cfg, err := config.LoadWithRoot(configPath, searchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	// Apply CLI flag overrides
	if includeFlags := c.StringSlice("include"); len(includeFlags) > 0 {
		cfg.Sources.Include = includeFlags
	}
	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Sources.Exclude = append(cfg.Sources.Exclude, excludeFlags...)
	}
	if rootFlag != "" {
		// Convert to absolute path to ensure consistent path handling
		absRoot, err := filepath.Abs(rootFlag)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", rootFlag, err)
		}
		cfg.Project.Root = absRoot
	}

	return cfg, nil
}

func main() {
	app := &cli.App{
		Name:                   "epi",
		Usage:                  "Instant emergency procedure lookup for crews and assistants",
		Version:                Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   config.ConfigFileName,
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root holding the procedure manuals",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Load manuals matching glob patterns (e.g., --include 'manuals/**/*.md')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Skip manuals matching glob patterns (e.g., --exclude '**/drafts/**')",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "lookup",
				Aliases:   []string{"l"},
				Usage:     "Find procedures matching an emergency description",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "max-results",
						Aliases: []string{"n"},
						Usage:   "Maximum number of procedures to return",
						Value:   10,
					},
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Show match scores and matched terms",
					},
				},
				Action: lookupCommand,
			},
			{
				Name:      "get",
				Aliases:   []string{"g"},
				Usage:     "Show one procedure by its identifier",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "children",
						Aliases: []string{"C"},
						Usage:   "List the procedure's sub-procedures",
					},
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: getCommand,
			},
			{
				Name:    "categories",
				Aliases: []string{"cats"},
				Usage:   "List the top-level emergency categories",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
					&cli.BoolFlag{
						Name:    "tree",
						Aliases: []string{"t"},
						Usage:   "Render the full procedure hierarchy as a tree",
					},
					&cli.IntFlag{
						Name:  "depth",
						Usage: "Deepest tree level to render (0 = all)",
					},
				},
				Action: categoriesCommand,
			},
			{
				Name:  "reload",
				Usage: "Rebuild the procedure store from the manual files",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: reloadCommand,
			},
			{
				Name:  "validate",
				Usage: "Check that the manual files load cleanly without serving them",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: validateCommand,
			},
			{
				Name:  "stats",
				Usage: "Show store, cache and query statistics from the running server",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: statsCommand,
			},
			{
				Name:    "status",
				Aliases: []string{"st"},
				Usage:   "Show whether a procedure server is running for this project",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: statusCommand,
			},
			{
				Name:      "ask",
				Aliases:   []string{"a"},
				Usage:     "Interactive emergency lookup session",
				ArgsUsage: "[first question]",
				Description: `Starts an interactive prompt that answers each line with the best
matching procedure. Inside the session:
  export   write the conversation transcript to disk
  reload   rebuild the store from the manual files
  exit     leave the session`,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "max-results",
						Aliases: []string{"n"},
						Usage:   "Alternatives listed below the best match",
						Value:   3,
					},
				},
				Action: askCommand,
			},
			{
				Name:    "server",
				Aliases: []string{"srv"},
				Usage:   "Start the persistent procedure server (shared between CLI and MCP)",
				Description: `Start a persistent server that keeps the procedure store resident in
memory. CLI commands and MCP clients connect to it over a Unix socket
for fast responses.

The server runs until explicitly shut down with 'epi shutdown'.`,
				Action: serverCommand,
			},
			{
				Name:    "shutdown",
				Aliases: []string{"stop"},
				Usage:   "Shut down the persistent procedure server",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Force shutdown even if requests are in progress",
					},
				},
				Action: shutdownCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Start MCP (Model Context Protocol) server with stdio transport",
				Action: mcpCommand,
			},
			{
				Name:  "config",
				Usage: "Configuration management commands",
				Subcommands: []*cli.Command{
					{
						Name:    "init",
						Aliases: []string{"i"},
						Usage:   "Initialize configuration file (.epi.kdl)",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "format",
								Aliases: []string{"f"},
								Usage:   "Output format: kdl, yaml, json",
								Value:   "kdl",
							},
							&cli.StringFlag{
								Name:    "output",
								Aliases: []string{"o"},
								Usage:   "Output file path",
							},
							&cli.BoolFlag{
								Name:  "force",
								Usage: "Overwrite an existing configuration file",
							},
							&cli.BoolFlag{
								Name:  "minimal",
								Usage: "Generate a minimal configuration",
							},
						},
						Action: configInitCommand,
					},
					{
						Name:    "show",
						Aliases: []string{"s"},
						Usage:   "Show current configuration values",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "format",
								Aliases: []string{"f"},
								Usage:   "Output format: kdl, table",
								Value:   "table",
							},
						},
						Action: configShowCommand,
					},
					{
						Name:    "validate",
						Aliases: []string{"v"},
						Usage:   "Validate configuration file",
						Action:  configValidateCommand,
					},
				},
			},
		},
		Before: func(c *cli.Context) error {
			// Silence debug output before anything writes to stdout; the MCP
			// transport needs a clean JSON-RPC stream
			if c.Args().Get(0) == "mcp" {
				debug.SetMCPMode(true)
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			// Default to lookup when a query is given
			if c.NArg() > 0 {
				return lookupCommand(c)
			}

			// Auto-detect MCP mode: if stdin carries JSON-RPC content, switch
			// to MCP mode
			if isMCPMode() {
				debug.LogMCP("Auto-detected MCP mode, entering MCP server")
				return mcpCommand(c)
			}

			return cli.ShowAppHelp(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func mcpCommand(c *cli.Context) error {
	// Enable MCP mode to suppress all debug output
	debug.SetMCPMode(true)

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return debug.Fatal("failed to load config: %v\n", err)
	}

	// The MCP server owns its engine and loads the manuals up front
	mcpServer, err := mcp.NewServer(nil, cfg)
	if err != nil {
		return debug.Fatal("failed to create MCP server: %v\n", err)
	}
	defer mcpServer.Close()

	// Share the engine over the Unix socket so CLI commands reach the same
	// store while the MCP session is alive
	sharedServer, err := startSharedProcedureServer(cfg, mcpServer.Engine())
	if err != nil {
		debug.LogMCP("Warning: failed to start shared procedure server: %v", err)
		debug.LogMCP("MCP will continue, but CLI commands won't be able to connect")
	} else {
		debug.LogMCP("Shared procedure server started, CLI commands can connect")
	}
	defer func() {
		if sharedServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sharedServer.Shutdown(shutdownCtx)
	}()

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		debug.LogMCP("Starting MCP server with stdio transport")
		errChan <- mcpServer.Start(ctx)
	}()

	// Wait for either server exit or shutdown signal
	select {
	case err := <-errChan:
		if err != nil {
			return debug.Fatal("MCP server error: %v\n", err)
		}
		return nil
	case sig := <-sigChan:
		debug.LogMCP("Received signal %v, shutting down gracefully", sig)
		cancel()

		// Give the server a moment to shut down gracefully
		shutdownTimer := time.NewTimer(2 * time.Second)
		defer shutdownTimer.Stop()

		select {
		case err := <-errChan:
			debug.LogMCP("Server shutdown completed")
			return err
		case <-shutdownTimer.C:
			debug.LogMCP("Graceful shutdown timeout, forcing exit")
			// Closing stdin breaks the stdio transport read loop
			os.Stdin.Close()

			forceTimer := time.NewTimer(500 * time.Millisecond)
			defer forceTimer.Stop()

			select {
			case err := <-errChan:
				debug.LogMCP("Server shutdown completed after stdin close")
				return err
			case <-forceTimer.C:
				debug.LogMCP("Force shutdown timeout exceeded")
				return nil
			}
		}
	}
}

// validateCommand loads the manuals once and reports what a server would
// serve, without opening a socket or touching a running server.
func validateCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	// A validation pass never watches
	cfg.Load.WatchMode = false

	start := time.Now()
	engine := core.NewEngine(cfg)
	defer engine.Close()

	if err := engine.Start(context.Background()); err != nil {
		if c.Bool("json") {
			out := map[string]interface{}{
				"valid": false,
				"error": err.Error(),
			}
			json.NewEncoder(os.Stdout).Encode(out)
			return cli.Exit("", 1)
		}
		fmt.Printf("Manual validation failed: %v\n", err)
		return cli.Exit("", 1)
	}

	snap := engine.Snapshot()
	elapsed := time.Since(start)
	warnings := snap.Warnings()

	if c.Bool("json") {
		out := map[string]interface{}{
			"valid":      true,
			"time_ms":    float64(elapsed.Microseconds()) / 1000.0,
			"procedures": snap.Count(),
			"categories": len(snap.Categories()),
			"sources":    snap.SourceCount(),
			"warnings":   warnings,
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	fmt.Printf("Loaded %d procedures from %d files in %.1fms\n",
		snap.Count(), snap.SourceCount(), float64(elapsed.Microseconds())/1000.0)
	fmt.Printf("Categories: %d\n", len(snap.Categories()))

	if len(warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(warnings))
		for _, w := range warnings {
			if w.Path != "" {
				fmt.Printf("  - %s:%d: %s\n", w.Path, w.Line, w.Message)
			} else {
				fmt.Printf("  - %s\n", w.Message)
			}
		}
	}

	fmt.Printf("\nManuals are valid\n")
	return nil
}

func configInitCommand(c *cli.Context) error {
	format := c.String("format")
	output := c.String("output")
	force := c.Bool("force")
	minimal := c.Bool("minimal")

	// Determine output file path
	if output == "" {
		switch format {
		case "kdl":
			output = config.ConfigFileName
		case "yaml":
			output = ".epi.yaml"
		case "json":
			output = ".epi.json"
		default:
			return fmt.Errorf("unsupported format: %s", format)
		}
	}

	// Check if file exists
	if !force {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("configuration file %s already exists (use --force to overwrite)", output)
		}
	}

	var content string
	var err error

	switch format {
	case "kdl":
		content, err = generateKDLConfig(minimal)
	case "yaml":
		content, err = generateYAMLConfig(minimal)
	case "json":
		content, err = generateJSONConfig(minimal)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	if err != nil {
		return fmt.Errorf("failed to generate config: %v", err)
	}

	if err := os.WriteFile(output, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}

	fmt.Printf("Configuration file created: %s\n", output)
	fmt.Printf("Edit the file to customize settings for your manuals.\n")

	if format == "kdl" {
		fmt.Printf("\nCommon customizations:\n")
		fmt.Printf("  - Point at your manual set: sources { include \"manuals/**/*.md\" }\n")
		fmt.Printf("  - Keep drafts out of lookups: sources { exclude \"**/drafts/**\" }\n")
		fmt.Printf("  - Reload when manuals change: load { watch_mode true }\n")
	}

	return nil
}

func configShowCommand(c *cli.Context) error {
	format := c.String("format")
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}
	if format == "table" {
		return displayConfigTable(cfg)
	}
	// Default to KDL output
	content, err := configToKDL(cfg)
	if err != nil {
		return fmt.Errorf("failed to convert to KDL: %v", err)
	}
	fmt.Print(content)
	return nil
}

func configValidateCommand(c *cli.Context) error {
	configPath := c.String("config")

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	// Additional validation checks
	warnings := []string{}

	if len(cfg.Sources.Include) == 0 {
		warnings = append(warnings, "no include patterns specified, no manuals will be loaded")
	}
	if !cfg.Matching.EnableFuzzy {
		warnings = append(warnings, "fuzzy matching is disabled, misspelled queries will find nothing")
	}
	if cfg.Cache.Enabled && cfg.Cache.MaxEntries < 16 {
		warnings = append(warnings, "cache max_entries is very low (<16), most lookups will miss the cache")
	}
	if cfg.Sources.MaxFileSize < 4*1024 {
		warnings = append(warnings, "max_file_size is very low (<4KB), larger manuals will be skipped")
	}

	fmt.Printf("Configuration file is valid\n")
	fmt.Printf("Config source: %s\n", configPath)
	fmt.Printf("Settings: root %s, %d include patterns, max %d results per lookup\n",
		cfg.Project.Root, len(cfg.Sources.Include), cfg.Matching.MaxResults)

	if len(warnings) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, warning := range warnings {
			fmt.Printf("  - %s\n", warning)
		}
	}

	return nil
}

func generateKDLConfig(minimal bool) (string, error) {
	if minimal {
		return `// Emergency Procedure Index configuration
// Minimal configuration with commonly changed settings

sources {
    include "manuals/**/*.md" "manuals/**/*.txt"

    // Keep unreviewed material out of lookups
    exclude "**/drafts/**" "**/archive/**"
}

matching {
    max_results 100                // Limit lookup results
    enable_fuzzy true              // Tolerate misspelled queries
}

load {
    watch_mode false               // Reload automatically when manuals change
}
`, nil
	}

	return `// Emergency Procedure Index configuration
// Full configuration template with all available options

project {
    name "my-manuals"
    root "."
}

sources {
    include "manuals/**/*.md" "manuals/**/*.txt"
    exclude "**/drafts/**" "**/archive/**"
    max_file_size "1MB"            // Skip manual files larger than this
    follow_symlinks false
    use_embedded true              // Serve the built-in manual when no sources match
}

load {
    parallel_workers 0             // 0 = one worker per core, minus one
    timeout_sec 30                 // Deadline for a full reload
    watch_mode false               // Reload automatically when manuals change
    watch_debounce_ms 300
}

matching {
    max_results 100                // Limit lookup results
    enable_fuzzy true              // Tolerate misspelled queries
    fuzzy_threshold 0.82           // Similarity needed for a fuzzy match
    fuzzy_algorithm "jaro-winkler" // "jaro-winkler", "levenshtein", "cosine"
}

stemming {
    enabled true
    algorithm "porter2"
    min_length 3
    exclude "o2" "eva" "co2"       // Terms kept verbatim
}

cache {
    enabled true
    max_entries 512
    ttl_minutes 30
}

server {
    shutdown_timeout_sec 5
}

session {
    enabled false                  // Record ask sessions to disk
    dir "transcripts"
}
`, nil
}

func generateYAMLConfig(minimal bool) (string, error) {
	// The loader reads .epi.kdl; the YAML rendering is a readable reference
	// for teams that keep settings documentation elsewhere
	if minimal {
		return `# Emergency Procedure Index configuration
version: 1
sources:
  include:
    - "manuals/**/*.md"
    - "manuals/**/*.txt"
  exclude:
    - "**/drafts/**"
matching:
  max_results: 100
  enable_fuzzy: true
`, nil
	}

	return `# Emergency Procedure Index configuration
version: 1
project:
  root: "."
  name: "my-manuals"
sources:
  include:
    - "manuals/**/*.md"
    - "manuals/**/*.txt"
  exclude:
    - "**/drafts/**"
    - "**/archive/**"
  max_file_size: 1048576  # 1MB
  follow_symlinks: false
  use_embedded: true
load:
  parallel_workers: 0
  timeout_sec: 30
  watch_mode: false
  watch_debounce_ms: 300
matching:
  max_results: 100
  enable_fuzzy: true
  fuzzy_threshold: 0.82
  fuzzy_algorithm: "jaro-winkler"
stemming:
  enabled: true
  algorithm: "porter2"
  min_length: 3
  exclusions: ["o2", "eva", "co2"]
cache:
  enabled: true
  max_entries: 512
  ttl_minutes: 30
server:
  shutdown_timeout_sec: 5
session:
  enabled: false
  dir: "transcripts"
`, nil
}

func generateJSONConfig(minimal bool) (string, error) {
	cfg := &config.Config{
		Version: 1,
		Project: config.Project{Root: ".", Name: "my-manuals"},
		Sources: config.Sources{
			Include:     []string{"manuals/**/*.md", "manuals/**/*.txt"},
			Exclude:     []string{"**/drafts/**", "**/archive/**"},
			MaxFileSize: config.DefaultMaxFileSize,
			UseEmbedded: true,
		},
		Load: config.LoadOptions{
			TimeoutSec:      config.DefaultLoadTimeoutSec,
			WatchDebounceMs: config.DefaultWatchDebounceMs,
		},
		Matching: config.Matching{
			MaxResults:     config.DefaultMaxResults,
			EnableFuzzy:    true,
			FuzzyThreshold: config.DefaultFuzzyThreshold,
			FuzzyAlgorithm: config.DefaultFuzzyAlgorithm,
		},
		Stemming: config.Stemming{
			Enabled:    true,
			Algorithm:  config.DefaultStemAlgorithm,
			MinLength:  config.DefaultStemMinLength,
			Exclusions: []string{"o2", "eva", "co2"},
		},
		Cache: config.Cache{
			Enabled:    true,
			MaxEntries: config.DefaultCacheEntries,
			TTLMinutes: config.DefaultCacheTTLMinutes,
		},
		Server:  config.Server{ShutdownTimeoutSec: 5},
		Session: config.Session{Dir: "transcripts"},
	}

	content, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}

	return string(content), nil
}

func configToKDL(cfg *config.Config) (string, error) {
	return fmt.Sprintf(`// Current Emergency Procedure Index configuration

project {
    name "%s"
    root "%s"
}

sources {
%s
%s
    max_file_size %d
    follow_symlinks %t
    use_embedded %t
}

load {
    parallel_workers %d
    timeout_sec %d
    watch_mode %t
    watch_debounce_ms %d
}

matching {
    max_results %d
    enable_fuzzy %t
    fuzzy_threshold %g
    fuzzy_algorithm "%s"
}

stemming {
    enabled %t
    algorithm "%s"
    min_length %d
%s
}

cache {
    enabled %t
    max_entries %d
    ttl_minutes %d
}

server {
    shutdown_timeout_sec %d
}

session {
    enabled %t
    dir "%s"
}
`,
		cfg.Project.Name,
		cfg.Project.Root,
		formatKDLStringList("include", cfg.Sources.Include),
		formatKDLStringList("exclude", cfg.Sources.Exclude),
		cfg.Sources.MaxFileSize,
		cfg.Sources.FollowSymlinks,
		cfg.Sources.UseEmbedded,
		cfg.Load.ParallelWorkers,
		cfg.Load.TimeoutSec,
		cfg.Load.WatchMode,
		cfg.Load.WatchDebounceMs,
		cfg.Matching.MaxResults,
		cfg.Matching.EnableFuzzy,
		cfg.Matching.FuzzyThreshold,
		cfg.Matching.FuzzyAlgorithm,
		cfg.Stemming.Enabled,
		cfg.Stemming.Algorithm,
		cfg.Stemming.MinLength,
		formatKDLStringList("exclude", cfg.Stemming.Exclusions),
		cfg.Cache.Enabled,
		cfg.Cache.MaxEntries,
		cfg.Cache.TTLMinutes,
		cfg.Server.ShutdownTimeoutSec,
		cfg.Session.Enabled,
		cfg.Session.Dir,
	), nil
}

// formatKDLStringList renders one node line per value so repeated nodes
// accumulate the way the loader reads them back.
func formatKDLStringList(name string, items []string) string {
	if len(items) == 0 {
		return fmt.Sprintf("    // no %s patterns", name)
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("    %s %q", name, item))
	}
	return strings.Join(lines, "\n")
}

func displayConfigTable(cfg *config.Config) error {
	fmt.Printf("Emergency Procedure Index Configuration\n")
	fmt.Printf("=======================================\n\n")

	fmt.Printf("Project Settings:\n")
	fmt.Printf("  Name:              %s\n", cfg.Project.Name)
	fmt.Printf("  Root:              %s\n", cfg.Project.Root)
	fmt.Printf("\n")

	fmt.Printf("Source Settings:\n")
	fmt.Printf("  Max file size:     %.1f KB\n", float64(cfg.Sources.MaxFileSize)/1024)
	fmt.Printf("  Follow symlinks:   %t\n", cfg.Sources.FollowSymlinks)
	fmt.Printf("  Embedded fallback: %t\n", cfg.Sources.UseEmbedded)
	fmt.Printf("\n")

	fmt.Printf("Load Settings:\n")
	fmt.Printf("  Parallel workers:  %d\n", cfg.Load.ParallelWorkers)
	fmt.Printf("  Timeout:           %d s\n", cfg.Load.TimeoutSec)
	fmt.Printf("  Watch mode:        %t\n", cfg.Load.WatchMode)
	fmt.Printf("  Watch debounce:    %d ms\n", cfg.Load.WatchDebounceMs)
	fmt.Printf("\n")

	fmt.Printf("Matching Settings:\n")
	fmt.Printf("  Max results:       %d\n", cfg.Matching.MaxResults)
	fmt.Printf("  Enable fuzzy:      %t\n", cfg.Matching.EnableFuzzy)
	fmt.Printf("  Fuzzy threshold:   %.2f\n", cfg.Matching.FuzzyThreshold)
	fmt.Printf("  Fuzzy algorithm:   %s\n", cfg.Matching.FuzzyAlgorithm)
	fmt.Printf("\n")

	fmt.Printf("Stemming Settings:\n")
	fmt.Printf("  Enabled:           %t\n", cfg.Stemming.Enabled)
	fmt.Printf("  Algorithm:         %s\n", cfg.Stemming.Algorithm)
	fmt.Printf("  Min length:        %d\n", cfg.Stemming.MinLength)
	if len(cfg.Stemming.Exclusions) > 0 {
		fmt.Printf("  Exclusions:        %s\n", strings.Join(cfg.Stemming.Exclusions, ", "))
	}
	fmt.Printf("\n")

	fmt.Printf("Cache Settings:\n")
	fmt.Printf("  Enabled:           %t\n", cfg.Cache.Enabled)
	fmt.Printf("  Max entries:       %d\n", cfg.Cache.MaxEntries)
	fmt.Printf("  TTL:               %d min\n", cfg.Cache.TTLMinutes)
	fmt.Printf("\n")

	fmt.Printf("Session Settings:\n")
	fmt.Printf("  Enabled:           %t\n", cfg.Session.Enabled)
	fmt.Printf("  Directory:         %s\n", cfg.Session.Dir)
	fmt.Printf("\n")

	fmt.Printf("Include Patterns (%d):\n", len(cfg.Sources.Include))
	for _, pattern := range cfg.Sources.Include {
		fmt.Printf("  %s\n", pattern)
	}
	fmt.Printf("\n")

	fmt.Printf("Exclude Patterns (%d):\n", len(cfg.Sources.Exclude))
	for _, pattern := range cfg.Sources.Exclude {
		fmt.Printf("  %s\n", pattern)
	}

	return nil
}

// isMCPMode detects if epi should enter MCP mode
func isMCPMode() bool {
	// Priority 1: Explicit environment variable (for MCP clients to set)
	if os.Getenv("EPI_MCP_MODE") == "1" || os.Getenv("EPI_MCP_MODE") == "true" {
		return true
	}

	// Priority 2: Non-terminal stdin (pipes, redirects) - likely JSON-RPC
	stat, err := os.Stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		return true
	}

	// Priority 3: Check if running as MCP server binary
	if len(os.Args) > 0 {
		arg0 := strings.ToLower(filepath.Base(os.Args[0]))
		if strings.Contains(arg0, "mcp") || strings.Contains(arg0, "server") {
			return true
		}
	}

	// Priority 4: Parent process detection (Linux-specific)
	if isParentMCPClient() {
		return true
	}

	return false
}

// isParentMCPClient checks if parent process suggests MCP usage (Linux-specific)
func isParentMCPClient() bool {
	ppid := os.Getppid()
	if ppid <= 1 {
		return false
	}

	commPath := fmt.Sprintf("/proc/%d/comm", ppid)
	if parentCmd, err := os.ReadFile(commPath); err == nil {
		parentName := strings.TrimSpace(string(parentCmd))
		// Common MCP client names
		mcpClients := []string{"mcp-tui", "mcp-client", "claude", "cursor", "vscode"}
		for _, client := range mcpClients {
			if strings.Contains(strings.ToLower(parentName), client) {
				return true
			}
		}
	}

	return false
}
