// Package config loads the slidetiles YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ChuLiYu/slidetiles/pkg/types"
	"gopkg.in/yaml.v3"
)

// Storage kinds.
const (
	StorageFile = "file"
	StorageBolt = "bolt"
	StorageHTTP = "http"
)

// Config represents the complete configuration. It maps config file fields
// through YAML tags.
type Config struct {
	Worker struct {
		WorkerCount int           `yaml:"worker_count"`
		JobTimeout  time.Duration `yaml:"job_timeout"`
		RemoteAddr  string        `yaml:"remote_addr"` // decode server; local executors when empty
	} `yaml:"worker"`

	Cache struct {
		MaxEntries int `yaml:"max_entries"`
	} `yaml:"cache"`

	Overlay struct {
		PointModeZoom    float64                  `yaml:"point_mode_zoom"`
		PointRadius      float64                  `yaml:"point_radius"`
		MinPixelRadius   float64                  `yaml:"min_pixel_radius"`
		LineWidth        float64                  `yaml:"line_width"`
		MinZoom          int                      `yaml:"min_zoom"`
		MaxZoom          int                      `yaml:"max_zoom"`
		TileCacheEntries int                      `yaml:"tile_cache_entries"`
		Opacity          float64                  `yaml:"opacity"`
		StrokeOpacity    float64                  `yaml:"stroke_opacity"`
		PayloadCodec     types.CodecID            `yaml:"payload_codec"` // block codec of tile payloads, none when empty
		Extent           Extent                   `yaml:"extent"`
		Markers          []types.MarkerDefinition `yaml:"markers"`
		Enabled          []string                 `yaml:"enabled"`
	} `yaml:"overlay"`

	Storage struct {
		Kind string `yaml:"kind"`
		Dir  string `yaml:"dir"`
		Path string `yaml:"path"`
		URL  string `yaml:"url"`
	} `yaml:"storage"`

	Remote struct {
		Port int `yaml:"port"`
	} `yaml:"remote"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// Extent is the full-resolution image size in pixels.
type Extent struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// DefaultOpacity is the overlay opacity when the config file does not set one.
const DefaultOpacity = 1.0

// newConfig returns a Config seeded with the defaults whose zero value is a
// valid setting. They are set before decoding so only an absent key keeps them.
func newConfig() *Config {
	cfg := &Config{}
	cfg.Overlay.Opacity = DefaultOpacity
	return cfg
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := newConfig()
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields with their defaults. overlay.opacity is not
// among them: zero is a valid opacity.
func (c *Config) ApplyDefaults() {
	if c.Worker.WorkerCount == 0 {
		c.Worker.WorkerCount = 8
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 1000
	}
	if c.Overlay.PointModeZoom == 0 {
		c.Overlay.PointModeZoom = 8
	}
	if c.Overlay.MaxZoom == 0 {
		c.Overlay.MaxZoom = 20
	}
	if c.Overlay.TileCacheEntries == 0 {
		c.Overlay.TileCacheEntries = 256
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageFile
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "./tiles"
	}
	if c.Remote.Port == 0 {
		c.Remote.Port = 50051
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Worker.WorkerCount < 0:
		return fmt.Errorf("worker.worker_count must be positive, got %d", c.Worker.WorkerCount)
	case c.Worker.JobTimeout < 0:
		return errors.New("worker.job_timeout must not be negative")
	case c.Cache.MaxEntries < 0:
		return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
	case c.Overlay.MinZoom > c.Overlay.MaxZoom:
		return fmt.Errorf("overlay.min_zoom %d above overlay.max_zoom %d", c.Overlay.MinZoom, c.Overlay.MaxZoom)
	case c.Overlay.Opacity < 0 || c.Overlay.Opacity > 1:
		return fmt.Errorf("overlay.opacity must be within [0,1], got %g", c.Overlay.Opacity)
	case c.Overlay.StrokeOpacity < 0 || c.Overlay.StrokeOpacity > 1:
		return fmt.Errorf("overlay.stroke_opacity must be within [0,1], got %g", c.Overlay.StrokeOpacity)
	}
	switch c.Storage.Kind {
	case StorageFile:
	case StorageBolt:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for bolt storage")
		}
	case StorageHTTP:
		if c.Storage.URL == "" {
			return errors.New("storage.url is required for http storage")
		}
	default:
		return fmt.Errorf("unknown storage.kind %q", c.Storage.Kind)
	}
	return nil
}

// Load reads the file at path, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := newConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
