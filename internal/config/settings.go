package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Settings are the user-tunable options.
type Settings struct {
	Log         LogSettings         `mapstructure:"log"`
	Merge       MergeSettings       `mapstructure:"merge"`
	Portability PortabilitySettings `mapstructure:"portability"`
	Cache       CacheSettings       `mapstructure:"cache"`
}

// LogSettings configure the log file.
type LogSettings struct {
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MergeSettings configure merge computation.
type MergeSettings struct {
	// MarkerSize is the width of conflict markers
	MarkerSize int `mapstructure:"marker_size"`

	// AllowNonLeaf permits merging versions that have descendants
	AllowNonLeaf bool `mapstructure:"allow_non_leaf"`
}

// PortabilitySettings configure name checks.
type PortabilitySettings struct {
	// Strict turns portability warnings into errors
	Strict bool `mapstructure:"strict"`

	// Deny lists glob patterns of names to flag
	Deny []string `mapstructure:"deny"`
}

// CacheSettings configure in-memory caches.
type CacheSettings struct {
	// Nodes is the size of the version node cache
	Nodes int `mapstructure:"nodes"`
}

// Default holds the built-in settings.
var Default = Settings{
	Log:         LogSettings{Level: "info", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
	Merge:       MergeSettings{MarkerSize: 7},
	Portability: PortabilitySettings{Deny: []string{}},
	Cache:       CacheSettings{Nodes: 1024},
}

// Load reads settings from the working copy's config.yaml and WCMERGE_*
// environment variables (WCMERGE_MERGE_MARKER_SIZE for merge.marker_size).
// A missing config file is not an error.
func Load(p *Paths) (*Settings, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(p.Meta)

	v.SetDefault("log.level", Default.Log.Level)
	v.SetDefault("log.max_size_mb", Default.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", Default.Log.MaxBackups)
	v.SetDefault("log.max_age_days", Default.Log.MaxAgeDays)
	v.SetDefault("merge.marker_size", Default.Merge.MarkerSize)
	v.SetDefault("merge.allow_non_leaf", Default.Merge.AllowNonLeaf)
	v.SetDefault("portability.strict", Default.Portability.Strict)
	v.SetDefault("portability.deny", Default.Portability.Deny)
	v.SetDefault("cache.nodes", Default.Cache.Nodes)

	v.SetEnvPrefix("WCMERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if s.Merge.MarkerSize < 1 {
		return nil, fmt.Errorf("merge.marker_size must be positive, got %d", s.Merge.MarkerSize)
	}
	if s.Cache.Nodes < 1 {
		return nil, fmt.Errorf("cache.nodes must be positive, got %d", s.Cache.Nodes)
	}
	return &s, nil
}
