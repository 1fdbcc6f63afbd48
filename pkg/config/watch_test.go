package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchNoFileIsNoop(t *testing.T) {
	err := Watch("/nonexistent/config.yaml", func(*Config) {
		t.Error("onChange must not fire without a config file")
	})
	assert.NoError(t, err)
}

func TestWatchDeliversReload(t *testing.T) {
	path := writeConfigFile(t, "uploads:\n  slots: 3\n")

	reloaded := make(chan *Config, 1)
	require.NoError(t, Watch(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("uploads:\n  slots: 7\n"), 0600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 7, *cfg.Uploads.Slots)
	case <-time.After(5 * time.Second):
		t.Fatal("reload was not delivered")
	}
}

func TestWatchDropsInvalidReload(t *testing.T) {
	path := writeConfigFile(t, "uploads:\n  slots: 3\n")

	reloaded := make(chan *Config, 1)
	require.NoError(t, Watch(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}))

	// A reload that fails validation must be dropped...
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  format: xml\n"), 0600))

	// ...while a subsequent valid write still gets through.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("uploads:\n  slots: 9\n"), 0600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9, *cfg.Uploads.Slots)
	case <-time.After(5 * time.Second):
		t.Fatal("valid reload was not delivered")
	}
}
