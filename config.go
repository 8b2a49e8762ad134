package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alefaraci/GoRaster/internal/raster"
)

type ConvertConfig struct {
	VerifyCRC      bool   `toml:"verify_crc"`
	MaxPixels      uint64 `toml:"max_pixels"`
	KeepResolution bool   `toml:"keep_resolution"`
	Overwrite      bool   `toml:"overwrite"` // convert even when the output is newer than the input
}

func (c ConvertConfig) Options() raster.Options {
	return raster.Options{
		ParseOptions: raster.ParseOptions{
			VerifyCRC: c.VerifyCRC,
			MaxPixels: c.MaxPixels,
		},
		KeepResolution: c.KeepResolution,
	}
}

type LogConfig struct {
	Level string `toml:"level"`
}

type WatchConfig struct {
	Inputs       []string `toml:"inputs"`
	Location     string   `toml:"location"`
	PollInterval int      `toml:"poll_interval"` // seconds, 0 = default (5s)
	RetryMax     int      `toml:"retry_max"`     // seconds, 0 = default (10s)
}

func (w WatchConfig) PollDuration() time.Duration {
	if w.PollInterval > 0 {
		return time.Duration(w.PollInterval) * time.Second
	}
	return 5 * time.Second
}

func (w WatchConfig) RetryDuration() time.Duration {
	if w.RetryMax > 0 {
		return time.Duration(w.RetryMax) * time.Second
	}
	return 10 * time.Second
}

func (w WatchConfig) InputDirs() []string {
	var dirs []string
	for _, d := range w.Inputs {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

type Config struct {
	Convert ConvertConfig `toml:"convert"`
	Log     LogConfig     `toml:"log"`
	Watch   WatchConfig   `toml:"watch"`
}

func defaultConfig() *Config {
	opts := raster.DefaultOptions()
	return &Config{
		Convert: ConvertConfig{
			VerifyCRC:      opts.VerifyCRC,
			MaxPixels:      opts.MaxPixels,
			KeepResolution: opts.KeepResolution,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
