package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/droserasprout/slskd/internal/logger"
)

// Watch begins watching the configuration file and invokes onChange with a
// freshly loaded configuration whenever it changes on disk.
//
// Reloads that fail to parse or validate are logged and dropped, leaving
// the running configuration untouched. Editors that replace the file
// (rename-over-write) are handled by viper's watcher.
//
// If no configuration file exists there is nothing to watch and Watch
// returns without error.
func Watch(configPath string, onChange func(*Config)) error {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return err
	}
	if !found {
		logger.Debug("no configuration file present, live reload disabled")
		return nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("configuration file changed", "path", e.Name, "op", e.Op.String())

		cfg, err := Load(configPath)
		if err != nil {
			logger.Error("ignoring invalid configuration reload", "error", err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()

	logger.Debug("watching configuration file", "path", v.ConfigFileUsed())
	return nil
}
