package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
locations:
  laf_dir: /data/laf
  work_dir: /data/work
cache:
  max_size: 1024
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int64(1024), cfg.Cache.MaxSize)
	assert.Equal(t, 0.5, cfg.Cache.FrequencyWeight)
	assert.Equal(t, 5*time.Minute, cfg.Cache.AdaptiveWindow)
	assert.Equal(t, 4, cfg.WorkerPool.MaxWorkers)
	assert.Equal(t, "db:otype", cfg.Loader.OTypeFeature)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "/data/work/schemas", cfg.Validation.SchemaDstDir)
	assert.Equal(t, "NORMAL", cfg.Logging.Verbose)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing laf dir", "locations:\n  work_dir: /w\n"},
		{"missing work dir", "locations:\n  laf_dir: /l\n"},
		{"bad format", "locations:\n  laf_dir: /l\n  work_dir: /w\nlogging:\n  format: xml\n"},
		{"bad command", "locations:\n  laf_dir: /l\n  work_dir: /w\nvalidate:\n  command: xmllint\n"},
		{"thresholds", "locations:\n  laf_dir: /l\n  work_dir: /w\ndisk:\n  warning_threshold: 99\n  full_threshold: 95\n"},
		{"not yaml", "locations: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLocations(t *testing.T) {
	loc := Default("/laf", "/work").Locations

	assert.Equal(t, "/laf/bhs/bhs.hdr", loc.SourceHeader("bhs"))
	assert.Equal(t, "/laf/annotations/px/px.hdr", loc.AnnoxHeader("px"))
	assert.Equal(t, "/work/bhs/bin", loc.CompiledDir("bhs"))
	assert.Equal(t, "/work/bhs/annotations/px/bin", loc.AnnoxCompiledDir("bhs", "px"))
	assert.Equal(t, "/work/bhs/prepared", loc.PreparedDir("bhs"))
	assert.Equal(t, "/work/bhs/--/plain", loc.TaskDir("bhs", "", "plain"))
	assert.Equal(t, "/work/bhs/px/plain", loc.TaskDir("bhs", "px", "plain"))
}
