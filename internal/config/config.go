package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the player and engine tunables.
type Config struct {
	Engine EngineConfig `koanf:"engine"`
	Audio  AudioConfig  `koanf:"audio"`

	// ResumePlayback re-opens media at the last saved position.
	ResumePlayback *bool `koanf:"resume_playback"`
}

// EngineConfig tunes the playback pipeline.
type EngineConfig struct {
	BufferDurationMs  int  `koanf:"buffer_duration_ms"`  // target buffered span per media type (default: 3000)
	WorkerIntervalMs  int  `koanf:"worker_interval_ms"`  // rest period between worker iterations (default: 10)
	CommandIntervalMs int  `koanf:"command_interval_ms"` // command manager cycle period (default: 25)
	DisableSeekSkew   bool `koanf:"disable_seek_skew"`   // turn off the backward seek-target skew heuristic
}

// AudioConfig tunes the reference audio container.
type AudioConfig struct {
	FrameDurationMs int `koanf:"frame_duration_ms"` // decoded frame duration (default: 100)
}

// Load reads configuration from the known paths, last one wins.
func Load() (*Config, error) {
	k := koanf.New(".")

	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/ripple/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ripple", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

// BufferDuration returns the buffering target with defaults applied.
func (c *Config) BufferDuration() time.Duration {
	if c.Engine.BufferDurationMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.Engine.BufferDurationMs) * time.Millisecond
}

// WorkerInterval returns the worker rest period with defaults applied.
func (c *Config) WorkerInterval() time.Duration {
	if c.Engine.WorkerIntervalMs <= 0 {
		return 10 * time.Millisecond
	}
	return time.Duration(c.Engine.WorkerIntervalMs) * time.Millisecond
}

// CommandInterval returns the command cycle period with defaults applied.
func (c *Config) CommandInterval() time.Duration {
	if c.Engine.CommandIntervalMs <= 0 {
		return 25 * time.Millisecond
	}
	return time.Duration(c.Engine.CommandIntervalMs) * time.Millisecond
}

// FrameDuration returns the audio frame duration with defaults applied.
func (c *Config) FrameDuration() time.Duration {
	if c.Audio.FrameDurationMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.Audio.FrameDurationMs) * time.Millisecond
}

// ShouldResume reports whether resume-playback is enabled (default: true).
func (c *Config) ShouldResume() bool {
	if c.ResumePlayback == nil {
		return true
	}
	return *c.ResumePlayback
}
