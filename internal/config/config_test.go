package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChuLiYu/slidetiles/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, `
worker:
  worker_count: 4
  job_timeout: 5s

cache:
  max_entries: 50

overlay:
  point_mode_zoom: 6
  opacity: 0.5
  stroke_opacity: 1
  payload_codec: lzw
  extent: {width: 1000, height: 800}
  markers:
    - name: tumor
      color: {r: 255, g: 0, b: 0, a: 255}
    - name: stroma
      color: {r: 0, g: 128, b: 0}
  enabled: [tumor]

storage:
  kind: bolt
  path: ./tiles.db

metrics:
  enabled: true
  port: 8080
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Worker.WorkerCount)
	assert.Equal(t, 5*time.Second, cfg.Worker.JobTimeout)
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, 6.0, cfg.Overlay.PointModeZoom)
	assert.Equal(t, types.CodecLZW, cfg.Overlay.PayloadCodec)
	assert.Equal(t, Extent{Width: 1000, Height: 800}, cfg.Overlay.Extent)
	require.Len(t, cfg.Overlay.Markers, 2)
	assert.Equal(t, types.RGBA{G: 128}, cfg.Overlay.Markers[1].Color)
	assert.Equal(t, []string{"tumor"}, cfg.Overlay.Enabled)
	assert.Equal(t, StorageBolt, cfg.Storage.Kind)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 8080, cfg.Metrics.Port)

	// untouched sections get defaults
	assert.Equal(t, 50051, cfg.Remote.Port)
	assert.Equal(t, 20, cfg.Overlay.MaxZoom)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `
worker:
  worker_count: "not a number"
  invalid yaml structure
    broken indentation
`)
	cfg, err := Load(path)
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 8, cfg.Worker.WorkerCount)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, StorageFile, cfg.Storage.Kind)
}

func TestLoad_OpacityZeroIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "overlay:\n  opacity: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Overlay.Opacity)

	cfg, err = Load(writeConfig(t, "overlay:\n  stroke_opacity: 0.5\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultOpacity, cfg.Overlay.Opacity, "absent key keeps the default")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"negative workers": func(c *Config) { c.Worker.WorkerCount = -1 },
		"zoom bounds":      func(c *Config) { c.Overlay.MinZoom = 30 },
		"opacity":          func(c *Config) { c.Overlay.Opacity = 1.5 },
		"stroke opacity":   func(c *Config) { c.Overlay.StrokeOpacity = -0.1 },
		"bolt path":        func(c *Config) { c.Storage.Kind = StorageBolt },
		"http url":         func(c *Config) { c.Storage.Kind = StorageHTTP },
		"unknown storage":  func(c *Config) { c.Storage.Kind = "s3" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestRepositoryDefaultConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "default.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Overlay.Markers)
}
