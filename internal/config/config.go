package config

import (
	"os"
	"path/filepath"
)

// Matching score constants. These values are used as defaults in both code
// and configuration parsing.
const (
	DefaultFuzzyThreshold  = 0.82
	DefaultFuzzyAlgorithm  = "jaro-winkler"
	DefaultStemAlgorithm   = "porter2"
	DefaultStemMinLength   = 3
	DefaultMaxResults      = 100
	DefaultMaxFileSize     = 1 * 1024 * 1024
	DefaultLoadTimeoutSec  = 30
	DefaultWatchDebounceMs = 300
	DefaultCacheEntries    = 512
	DefaultCacheTTLMinutes = 30
)

type Config struct {
	Version  int
	Project  Project
	Sources  Sources
	Load     LoadOptions
	Matching Matching
	Stemming Stemming
	Cache    Cache
	Server   Server
	Session  Session
}

type Project struct {
	Root string
	Name string
}

// Sources controls where procedure manuals are read from.
type Sources struct {
	Include        []string // Doublestar globs relative to the project root
	Exclude        []string
	MaxFileSize    int64
	FollowSymlinks bool
	UseEmbedded    bool // Serve the built-in manual when no sources match
}

// LoadOptions controls how manuals are read and indexed.
type LoadOptions struct {
	ParallelWorkers int // 0 = auto-detect (NumCPU-1)
	TimeoutSec      int // Deadline for a full reload
	WatchMode       bool
	WatchDebounceMs int
}

// Matching controls the lookup pipeline.
type Matching struct {
	MaxResults     int
	EnableFuzzy    bool
	FuzzyThreshold float64
	FuzzyAlgorithm string // "jaro-winkler", "levenshtein", "cosine"
}

// Stemming controls keyword normalization.
type Stemming struct {
	Enabled    bool
	Algorithm  string
	MinLength  int
	Exclusions []string // Terms kept verbatim, e.g. "o2", "eva"
}

type Cache struct {
	Enabled    bool
	MaxEntries int
	TTLMinutes int
}

type Server struct {
	Socket             string // Empty = derive from project name
	ShutdownTimeoutSec int
}

type Session struct {
	Enabled bool
	Dir     string
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot layers a project .epi.kdl over the global ~/.epi.kdl, falling
// back to defaults when neither exists. Project settings win; source
// exclusions accumulate.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	var baseConfig *Config
	if homeDir, err := os.UserHomeDir(); err == nil {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	var projectConfig *Config
	if kdlCfg, err := LoadKDL(searchDir); err == nil && kdlCfg != nil {
		projectConfig = kdlCfg
	} else if err != nil {
		return nil, err
	}

	var cfg *Config
	switch {
	case baseConfig != nil && projectConfig != nil:
		cfg = mergeConfigs(baseConfig, projectConfig)
	case projectConfig != nil:
		cfg = projectConfig
	case baseConfig != nil:
		baseConfig.Project.Root = searchDir
		cfg = baseConfig
	default:
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		cfg = defaultConfig(cwd)
	}

	// The root keys the per-project server socket, so it must resolve to
	// the same string no matter which directory the process started in.
	if abs, err := filepath.Abs(cfg.Project.Root); err == nil {
		cfg.Project.Root = abs
	}
	return cfg, nil
}

func defaultConfig(root string) *Config {
	return &Config{
		Version: 1,
		Project: Project{
			Root: root,
			Name: filepath.Base(root),
		},
		Sources: Sources{
			Include:        defaultIncludes(),
			Exclude:        defaultExclusions(),
			MaxFileSize:    DefaultMaxFileSize,
			FollowSymlinks: false,
			UseEmbedded:    true,
		},
		Load: LoadOptions{
			ParallelWorkers: 0, // auto-detect
			TimeoutSec:      DefaultLoadTimeoutSec,
			WatchMode:       false,
			WatchDebounceMs: DefaultWatchDebounceMs,
		},
		Matching: Matching{
			MaxResults:     DefaultMaxResults,
			EnableFuzzy:    true,
			FuzzyThreshold: DefaultFuzzyThreshold,
			FuzzyAlgorithm: DefaultFuzzyAlgorithm,
		},
		Stemming: Stemming{
			Enabled:   true,
			Algorithm: DefaultStemAlgorithm,
			MinLength: DefaultStemMinLength,
		},
		Cache: Cache{
			Enabled:    true,
			MaxEntries: DefaultCacheEntries,
			TTLMinutes: DefaultCacheTTLMinutes,
		},
		Server: Server{
			ShutdownTimeoutSec: 5,
		},
		Session: Session{
			Enabled: false,
			Dir:     "transcripts",
		},
	}
}

func defaultIncludes() []string {
	return []string{
		"manuals/**/*.md",
		"manuals/**/*.txt",
	}
}

func defaultExclusions() []string {
	return []string{
		// Git metadata and hidden directories
		"**/.git/**",
		"**/.*/**",

		// Unreviewed material never served as guidance
		"**/drafts/**",
		"**/archive/**",

		// Editor temp files
		"**/*.swp",
		"**/*.swo",
		"**/*~",
		"**/*.bak",
		"**/*.orig",
		"**/*.tmp",
	}
}

// mergeConfigs merges a base config with a project config.
// Project config takes precedence, but base exclusions are preserved.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Sources.Exclude) > 0 {
		excludeMap := make(map[string]bool)
		order := make([]string, 0, len(base.Sources.Exclude)+len(project.Sources.Exclude))

		for _, pattern := range base.Sources.Exclude {
			if !excludeMap[pattern] {
				excludeMap[pattern] = true
				order = append(order, pattern)
			}
		}
		for _, pattern := range project.Sources.Exclude {
			if !excludeMap[pattern] {
				excludeMap[pattern] = true
				order = append(order, pattern)
			}
		}

		merged.Sources.Exclude = order
	}

	// Includes: project overrides base completely if specified
	if len(project.Sources.Include) == 0 && len(base.Sources.Include) > 0 {
		merged.Sources.Include = base.Sources.Include
	}

	return &merged
}
