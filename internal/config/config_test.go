package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:2379"}, cfg.EtcdEndpoints)
	assert.Equal(t, 5*time.Second, cfg.EtcdTimeout)
	assert.Equal(t, ":50052", cfg.WorkerListenAddr)
	assert.Equal(t, ":50051", cfg.DispatcherListenAddr)
	assert.Equal(t, "@every 30s", cfg.HarvestSchedule)
	assert.Equal(t, "@every 5s", cfg.WorkerSyncSchedule)
	assert.Equal(t, 10*time.Second, cfg.HarvestTimeout)
	assert.Equal(t, 128, cfg.QueueSize)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.Equal(t, ModelConfig{Kind: "lsi", NumTerms: 1000, NumTopics: 100, Decay: 1.0}, cfg.Model)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
log_level: debug
queue_size: 8
model:
  kind: termcount
  num_terms: 50
`), 0o644))
	t.Setenv("LSI_HARVEST_SCHEDULE", "*/5 * * * *")
	t.Setenv("LSI_MODEL_NUM_TERMS", "75")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, 8, cfg.QueueSize)
	assert.Equal(t, "*/5 * * * *", cfg.HarvestSchedule)
	assert.Equal(t, "termcount", cfg.Model.Kind)
	assert.Equal(t, 75, cfg.Model.NumTerms)
	assert.Equal(t, map[string]any{
		"kind": "termcount", "num_terms": 75, "num_topics": 100, "decay": 1.0,
	}, cfg.Model.Params())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	v := viper.New()
	v.Set("harvest_schedule", "not a schedule")
	_, err := load(v)
	assert.Error(t, err)

	v = viper.New()
	v.Set("queue_size", 0)
	_, err = load(v)
	assert.Error(t, err)

	v = viper.New()
	v.Set("harvest_timeout", "-1s")
	_, err = load(v)
	assert.Error(t, err)
}
