package config

import (
	"strings"
	"time"
)

// DefaultConfig returns a complete configuration with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyUploadsDefaults(&cfg.Uploads)
	applyUsersDefaults(&cfg.Users)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	// Normalized for consistent internal representation.
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port <= 0 {
		cfg.Port = 9090
	}
}

func applyUploadsDefaults(cfg *UploadsConfig) {
	// Slot counts are pointers so an explicit 0 (queue everything,
	// release nothing) survives defaulting.
	if cfg.Slots == nil {
		slots := 10
		cfg.Slots = &slots
	}

	applyGroupDefaults(&cfg.Groups.Default, 500, *cfg.Slots)
	applyGroupDefaults(&cfg.Groups.Leechers, 999, 1)
}

// applyGroupDefaults fills a group definition. Priority and slots default
// per group; strategy defaults to round-robin so no single peer can
// monopolize a group's slots out of the box.
func applyGroupDefaults(cfg *GroupConfig, priority, slots int) {
	if cfg.Priority == 0 {
		cfg.Priority = priority
	}
	if cfg.Slots == nil {
		cfg.Slots = &slots
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "RoundRobin"
	}
}

func applyUsersDefaults(cfg *UsersConfig) {
	if cfg.Leechers.Files == 0 {
		cfg.Leechers.Files = 1
	}
	if cfg.Leechers.Directories == 0 {
		cfg.Leechers.Directories = 1
	}
}
