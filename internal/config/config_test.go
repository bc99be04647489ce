package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultActiveCap, cfg.Lifecycle.ActiveCap)
	assert.Equal(t, DefaultNextActionMax, cfg.Lifecycle.NextActionMax)
	assert.Equal(t, DefaultReviewStaleDays, cfg.Lifecycle.ReviewStaleDays)
	assert.Equal(t, "active", cfg.Lifecycle.DefaultStatus)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.False(t, cfg.GitHubEnabled())
}

func TestFromYAMLKeepsDefaultsForMissingSections(t *testing.T) {
	cfg, err := FromYAML([]byte("lifecycle:\n  active_cap: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Lifecycle.ActiveCap)
	assert.Equal(t, 140, cfg.Lifecycle.NextActionMax)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
}

func TestFromYAMLRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"zero cap":        "lifecycle:\n  active_cap: 0\n",
		"bad status":      "lifecycle:\n  default_status: archived\n",
		"bad driver":      "database:\n  driver: mysql\n",
		"postgres no dsn": "database:\n  driver: postgres\n",
		"webhook no url":  "webhooks:\n  - events: [project.launched]\n",
		"bad log format":  "log:\n  format: xml\n",
		"broken yaml":     "lifecycle: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Lifecycle.ActiveCap)

	_, err = Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pcengine.yml"), []byte("lifecycle:\n  active_cap: 2\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Lifecycle.ActiveCap)
}
