package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	eperrors "github.com/quietbeacon/epi/internal/errors"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults.
// Returns an error if validation fails.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProject(&cfg.Project); err != nil {
		return eperrors.NewConfigError("project", "", err)
	}

	if err := v.validateSources(&cfg.Sources); err != nil {
		return eperrors.NewConfigError("sources", "", err)
	}

	if err := v.validateLoad(&cfg.Load); err != nil {
		return eperrors.NewConfigError("load", "", err)
	}

	if err := v.validateMatching(&cfg.Matching); err != nil {
		return eperrors.NewConfigError("matching", "", err)
	}

	if err := v.validateStemming(&cfg.Stemming); err != nil {
		return eperrors.NewConfigError("stemming", "", err)
	}

	if err := v.validateCache(&cfg.Cache); err != nil {
		return eperrors.NewConfigError("cache", "", err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateProject(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	return nil
}

func (v *Validator) validateSources(sources *Sources) error {
	if sources.MaxFileSize <= 0 {
		return fmt.Errorf("MaxFileSize must be positive, got %d", sources.MaxFileSize)
	}

	if sources.MaxFileSize > 100*1024*1024 {
		return fmt.Errorf("MaxFileSize should not exceed 100MB, got %d", sources.MaxFileSize)
	}

	for _, pattern := range sources.Include {
		if pattern == "" {
			return errors.New("include patterns cannot be empty strings")
		}
	}

	return nil
}

func (v *Validator) validateLoad(load *LoadOptions) error {
	if load.ParallelWorkers < 0 {
		return fmt.Errorf("ParallelWorkers cannot be negative, got %d", load.ParallelWorkers)
	}

	if load.TimeoutSec <= 0 {
		return fmt.Errorf("TimeoutSec must be positive, got %d", load.TimeoutSec)
	}

	if load.WatchDebounceMs < 0 {
		return fmt.Errorf("WatchDebounceMs cannot be negative, got %d", load.WatchDebounceMs)
	}

	return nil
}

func (v *Validator) validateMatching(matching *Matching) error {
	if matching.MaxResults < 0 {
		return fmt.Errorf("MaxResults cannot be negative, got %d", matching.MaxResults)
	}

	if matching.FuzzyThreshold < 0.0 || matching.FuzzyThreshold > 1.0 {
		return fmt.Errorf("FuzzyThreshold must be between 0.0 and 1.0, got %v", matching.FuzzyThreshold)
	}

	switch matching.FuzzyAlgorithm {
	case "", "jaro-winkler", "levenshtein", "cosine":
	default:
		return fmt.Errorf("unsupported fuzzy algorithm: %s", matching.FuzzyAlgorithm)
	}

	return nil
}

func (v *Validator) validateStemming(stemming *Stemming) error {
	switch stemming.Algorithm {
	case "", "porter2", "none":
	default:
		return fmt.Errorf("unsupported stemming algorithm: %s", stemming.Algorithm)
	}

	if stemming.MinLength < 1 {
		return fmt.Errorf("MinLength must be at least 1, got %d", stemming.MinLength)
	}

	return nil
}

func (v *Validator) validateCache(cache *Cache) error {
	if cache.MaxEntries < 0 {
		return fmt.Errorf("MaxEntries cannot be negative, got %d", cache.MaxEntries)
	}

	if cache.TTLMinutes < 0 {
		return fmt.Errorf("TTLMinutes cannot be negative, got %d", cache.TTLMinutes)
	}

	return nil
}

// setSmartDefaults applies defaults based on system capabilities
func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}

	// Leave one core free for the OS and callers
	if cfg.Load.ParallelWorkers == 0 {
		numCPU := runtime.NumCPU()
		cfg.Load.ParallelWorkers = max(1, numCPU-1)
	}

	if len(cfg.Sources.Include) == 0 {
		cfg.Sources.Include = defaultIncludes()
	}

	if cfg.Matching.MaxResults == 0 {
		cfg.Matching.MaxResults = DefaultMaxResults
	}

	if cfg.Matching.FuzzyAlgorithm == "" {
		cfg.Matching.FuzzyAlgorithm = DefaultFuzzyAlgorithm
	}

	if cfg.Stemming.Algorithm == "" {
		cfg.Stemming.Algorithm = DefaultStemAlgorithm
	}

	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheEntries
	}

	if cfg.Cache.TTLMinutes == 0 {
		cfg.Cache.TTLMinutes = DefaultCacheTTLMinutes
	}

	if cfg.Server.ShutdownTimeoutSec == 0 {
		cfg.Server.ShutdownTimeoutSec = 5
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
