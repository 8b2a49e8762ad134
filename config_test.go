package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing file gives defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.toml"))
		require.NoError(t, err)
		assert.True(t, cfg.Convert.VerifyCRC)
		assert.True(t, cfg.Convert.KeepResolution)
		assert.False(t, cfg.Convert.Overwrite)
		assert.Equal(t, uint64(1<<28), cfg.Convert.MaxPixels)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Empty(t, cfg.Watch.InputDirs())
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		writeFile(t, path, []byte(`
[convert]
verify_crc = false
max_pixels = 1000
overwrite = true

[log]
level = "debug"

[watch]
inputs = ["/in/a", "", "/in/b"]
location = "/out"
poll_interval = 2
`))
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.False(t, cfg.Convert.VerifyCRC)
		assert.True(t, cfg.Convert.KeepResolution, "unset keys keep their default")
		assert.True(t, cfg.Convert.Overwrite)
		assert.Equal(t, uint64(1000), cfg.Convert.MaxPixels)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, []string{"/in/a", "/in/b"}, cfg.Watch.InputDirs())
		assert.Equal(t, "/out", cfg.Watch.Location)
		assert.Equal(t, 2*time.Second, cfg.Watch.PollDuration())
		assert.Equal(t, 10*time.Second, cfg.Watch.RetryDuration())

		opts := cfg.Convert.Options()
		assert.False(t, opts.VerifyCRC)
		assert.Equal(t, uint64(1000), opts.MaxPixels)
		assert.True(t, opts.KeepResolution)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		writeFile(t, path, []byte("[convert\nverify_crc = "))
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, path)
	})
}
