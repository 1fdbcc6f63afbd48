package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/droserasprout/slskd/internal/logger"
	"github.com/droserasprout/slskd/pkg/api"
	"github.com/droserasprout/slskd/pkg/upload"
)

// Config represents the slskd server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SLSKD_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// The uploads and users sections are live: editing the config file while
// the server runs rebuilds the governor's group table and the user
// resolver without disturbing in-flight transfers.
type Config struct {
	// Logging controls log output behavior.
	Logging logger.Config `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains management API server configuration.
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Uploads contains the upload governor configuration: the global slot
	// cap and the group definitions.
	Uploads UploadsConfig `mapstructure:"uploads" yaml:"uploads"`

	// Users controls how peers are classified into groups.
	Users UsersConfig `mapstructure:"users" yaml:"users"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// UploadsConfig is the scheduling portion of the configuration.
type UploadsConfig struct {
	// Slots is the global cap on concurrently active uploads. An explicit
	// 0 means no upload is ever released; a pointer distinguishes that
	// from "not set".
	// Default: 10
	Slots *int `mapstructure:"slots" validate:"omitempty,min=0" yaml:"slots"`

	// Groups defines the scheduling classes. The privileged group is
	// implicit (priority 0, slots equal to the global cap) and cannot be
	// configured here.
	Groups UploadGroupsConfig `mapstructure:"groups" yaml:"groups"`
}

// UploadGroupsConfig holds the configurable groups.
type UploadGroupsConfig struct {
	// Default is the group for peers with no other classification.
	Default GroupConfig `mapstructure:"default" yaml:"default"`

	// Leechers is the group for peers sharing below the configured
	// thresholds.
	Leechers GroupConfig `mapstructure:"leechers" yaml:"leechers"`

	// UserDefined maps operator-chosen group names to their settings and
	// member lists. The names "privileged", "default" and "leechers" are
	// reserved.
	UserDefined map[string]UserDefinedGroupConfig `mapstructure:"user_defined" yaml:"user_defined,omitempty"`
}

// GroupConfig is a single group definition.
type GroupConfig struct {
	// Priority orders groups at dispatch; lower values schedule earlier.
	// 0 is reserved for the privileged group.
	Priority int `mapstructure:"priority" validate:"min=1" yaml:"priority"`

	// Slots caps concurrently active uploads for this group. An explicit
	// 0 keeps the group's uploads queued indefinitely; nil means "not
	// set" and takes the group's default.
	Slots *int `mapstructure:"slots" validate:"omitempty,min=0" yaml:"slots"`

	// Strategy is the ordering discipline: FirstInFirstOut or RoundRobin
	// (case-insensitive).
	Strategy string `mapstructure:"strategy" validate:"required" yaml:"strategy"`
}

// UserDefinedGroupConfig is a group definition plus its member list.
type UserDefinedGroupConfig struct {
	GroupConfig `mapstructure:",squash" yaml:",inline"`

	// Members lists the usernames belonging to this group.
	Members []string `mapstructure:"members" yaml:"members,omitempty"`
}

// UsersConfig controls peer classification.
type UsersConfig struct {
	// Privileged lists usernames that always schedule first.
	Privileged []string `mapstructure:"privileged" yaml:"privileged,omitempty"`

	// Leechers configures leecher detection from peer-reported share
	// counts.
	Leechers LeechersConfig `mapstructure:"leechers" yaml:"leechers"`
}

// LeechersConfig holds the leecher detection thresholds. A peer reporting
// fewer shared files or directories than the thresholds is classified into
// the leechers group.
type LeechersConfig struct {
	// Thresholds below which a peer counts as a leecher.
	// Defaults: 1 file, 1 directory (peers sharing nothing).
	Files       int `mapstructure:"files" validate:"min=0" yaml:"files"`
	Directories int `mapstructure:"directories" validate:"min=0" yaml:"directories"`
}

// UploadOptions converts the uploads section into governor options,
// parsing the strategy strings.
func (c *UploadsConfig) UploadOptions() (upload.Options, error) {
	parse := func(name string, g GroupConfig) (upload.GroupOptions, error) {
		strategy, err := upload.ParseStrategy(g.Strategy)
		if err != nil {
			return upload.GroupOptions{}, fmt.Errorf("group %q: %w", name, err)
		}
		slots := 0
		if g.Slots != nil {
			slots = *g.Slots
		}
		return upload.GroupOptions{
			Priority: g.Priority,
			Slots:    slots,
			Strategy: strategy,
		}, nil
	}

	opts := upload.Options{}
	if c.Slots != nil {
		opts.GlobalSlots = *c.Slots
	}

	var err error
	if opts.Default, err = parse(upload.GroupDefault, c.Groups.Default); err != nil {
		return upload.Options{}, err
	}
	if opts.Leechers, err = parse(upload.GroupLeechers, c.Groups.Leechers); err != nil {
		return upload.Options{}, err
	}

	if len(c.Groups.UserDefined) > 0 {
		opts.UserDefined = make(map[string]upload.GroupOptions, len(c.Groups.UserDefined))
		for name, g := range c.Groups.UserDefined {
			parsed, err := parse(name, g.GroupConfig)
			if err != nil {
				return upload.Options{}, err
			}
			opts.UserDefined[name] = parsed
		}
	}

	return opts, nil
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses the default
//     location, $XDG_CONFIG_HOME/slskd/config.yaml)
//
// Returns the loaded and validated configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := DefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures environment variable support and the config file
// search path. Environment variables use the SLSKD_ prefix, for example
// SLSKD_UPLOADS_SLOTS=5.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("SLSKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook converts strings like "30s" to time.Duration so the
// config file can use human-readable durations.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "slskd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "slskd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
