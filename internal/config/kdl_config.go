package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// ConfigFileName is the per-project and per-user configuration file.
const ConfigFileName = ".epi.kdl"

// LoadKDL attempts to load configuration from a .epi.kdl file in dir.
// Returns (nil, nil) when no config file exists.
func LoadKDL(dir string) (*Config, error) {
	kdlPath := filepath.Join(dir, ConfigFileName)

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", ConfigFileName, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	// Resolve the root relative to the directory containing the config file
	// so the same file works regardless of the process working directory.
	if cfg.Project.Root != "" {
		var absRoot string
		if filepath.IsAbs(cfg.Project.Root) {
			absRoot = cfg.Project.Root
		} else {
			absRoot = filepath.Join(dir, cfg.Project.Root)
		}
		cfg.Project.Root = filepath.Clean(absRoot)
	} else {
		absRoot, err := filepath.Abs(dir)
		if err != nil {
			absRoot = dir
		}
		cfg.Project.Root = absRoot
	}

	return cfg, nil
}

func parseKDL(content string) (*Config, error) {
	// Root and name stay empty here; LoadKDL resolves them against the
	// config file location and the validator derives the name.
	cfg := defaultConfig("")
	cfg.Project.Name = ""
	cfg.Sources.Include = nil // a sources block replaces, never appends to, defaults

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "sources":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "include":
					cfg.Sources.Include = append(cfg.Sources.Include, collectStringArgs(cn)...)
				case "exclude":
					cfg.Sources.Exclude = append(cfg.Sources.Exclude, collectStringArgs(cn)...)
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Sources.MaxFileSize = int64(v)
					}
					if s, ok := firstStringArg(cn); ok {
						if sz, err := parseSize(s); err == nil {
							cfg.Sources.MaxFileSize = sz
						}
					}
				case "follow_symlinks":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Sources.FollowSymlinks = b
					}
				case "use_embedded":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Sources.UseEmbedded = b
					}
				}
			}
		case "load":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "parallel_workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Load.ParallelWorkers = v
					}
				case "timeout_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Load.TimeoutSec = v
					}
				case "watch_mode":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Load.WatchMode = b
					}
				case "watch_debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Load.WatchDebounceMs = v
					}
				}
			}
		case "matching":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_results":
					if v, ok := firstIntArg(cn); ok {
						cfg.Matching.MaxResults = v
					}
				case "enable_fuzzy":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Matching.EnableFuzzy = b
					}
				case "fuzzy_threshold":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Matching.FuzzyThreshold = v
					}
				case "fuzzy_algorithm":
					if s, ok := firstStringArg(cn); ok {
						cfg.Matching.FuzzyAlgorithm = s
					}
				}
			}
		case "stemming":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Stemming.Enabled = b
					}
				case "algorithm":
					if s, ok := firstStringArg(cn); ok {
						cfg.Stemming.Algorithm = s
					}
				case "min_length":
					if v, ok := firstIntArg(cn); ok {
						cfg.Stemming.MinLength = v
					}
				case "exclude":
					cfg.Stemming.Exclusions = append(cfg.Stemming.Exclusions, collectStringArgs(cn)...)
				}
			}
		case "cache":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Cache.Enabled = b
					}
				case "max_entries":
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.MaxEntries = v
					}
				case "ttl_minutes":
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.TTLMinutes = v
					}
				}
			}
		case "server":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "socket":
					if s, ok := firstStringArg(cn); ok {
						cfg.Server.Socket = s
					}
				case "shutdown_timeout_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Server.ShutdownTimeoutSec = v
					}
				}
			}
		case "session":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Session.Enabled = b
					}
				case "dir":
					if s, ok := firstStringArg(cn); ok {
						cfg.Session.Dir = s
					}
				}
			}
		}
	}

	if len(cfg.Sources.Include) == 0 {
		cfg.Sources.Include = defaultIncludes()
	}

	return cfg, nil
}

// Helper functions leveraging the kdl-go document model
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// Block format like exclude { "pattern" } puts strings in child nodes
	// where the node name is the string value.
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

// parseSize handles size strings like "10MB", "500KB", "1GB"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		multiplier = 1
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}

	return num * multiplier, nil
}
