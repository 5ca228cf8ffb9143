package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askcos/prediction-gateway/internal/config"
)

const validYAML = `
server:
  port: 9100
  read_timeout: 30s
  write_timeout: 5m
  rate_limit: 10
  api_tokens: [secret]
store:
  type: memory
  ttl: 30m
broker:
  queue_capacity: 100
  default_priority: 1
workers:
  generic: 2
  pools:
    retro_template_relevance: 3
backends:
  retro_template_relevance:
    enabled: true
    prediction_url: http://tr:9410/predictions
    timeout: 20s
    available_model_names: [reaxys]
  general_selectivity_qm_gnn:
    enabled: false
monitoring:
  log:
    level: debug
    format: json
  alerts:
    high_latency_threshold: 5s
  metrics_enabled: true
`

// =============================================================================
// LOADING
// =============================================================================

func TestLoadFromBytes_Valid(t *testing.T) {
	cfg, err := config.LoadFromBytes([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"secret"}, cfg.Server.APITokens)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, 30*time.Minute, cfg.Store.TTL)
	assert.Equal(t, 100, cfg.Broker.QueueCapacity)
	assert.Equal(t, 3, cfg.Workers.SizeFor("retro_template_relevance"))

	tr := cfg.Backends["retro_template_relevance"]
	assert.True(t, tr.Enabled)
	assert.Equal(t, 20*time.Second, tr.Timeout)
	assert.Equal(t, []string{"reaxys"}, tr.AvailableModelNames)

	assert.Equal(t, []string{"retro_template_relevance"}, cfg.Backends.Enabled())
	assert.Equal(t, []string{"retro_template_relevance"}, cfg.Backends.Queues())
	assert.Equal(t, "debug", cfg.Monitoring.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Monitoring.Alerts.HighLatencyThreshold)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load("")
	assert.ErrorContains(t, err, "config file path is required")

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = config.LoadFromBytes([]byte("server: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoadFromBytes_ExpandsEnv(t *testing.T) {
	t.Setenv("TR_URL", "http://from-env:1234/predictions")

	yaml := `
server: {port: 9100, read_timeout: 1s, write_timeout: 1s}
store: {type: memory}
backends:
  retro_template_relevance:
    enabled: true
    prediction_url: ${TR_URL}
    timeout: ${TR_TIMEOUT:-45s}
`
	cfg, err := config.LoadFromBytes([]byte(yaml))
	require.NoError(t, err)

	tr := cfg.Backends["retro_template_relevance"]
	assert.Equal(t, "http://from-env:1234/predictions", tr.PredictionURL)
	assert.Equal(t, 45*time.Second, tr.Timeout)
}

func TestLoadFromBytes_EnvOverrides(t *testing.T) {
	t.Setenv(config.EnvPort, "9200")
	t.Setenv(config.EnvStorePath, "/tmp/results.db")
	t.Setenv(config.EnvTelemetryLog, "/tmp/tasks.jsonl")

	cfg, err := config.LoadFromBytes([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "/tmp/results.db", cfg.Store.Path)
	assert.True(t, cfg.Monitoring.Telemetry.Enabled)
	assert.Equal(t, "/tmp/tasks.jsonl", cfg.Monitoring.Telemetry.LogPath)
}

func TestLoadFromBytes_InvalidPortOverride(t *testing.T) {
	t.Setenv(config.EnvPort, "not-a-port")

	_, err := config.LoadFromBytes([]byte(validYAML))
	assert.ErrorContains(t, err, config.EnvPort)
}

// =============================================================================
// VALIDATION
// =============================================================================

func baseConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 9100, ReadTimeout: time.Second, WriteTimeout: time.Second},
		Store:  config.StoreConfig{Type: "memory"},
		Backends: config.BackendsConfig{
			"retro_graph2smiles": {Enabled: true, PredictionURL: "http://g2s"},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"missing port", func(c *config.Config) { c.Server.Port = 0 }, "server.port is required"},
		{"port out of range", func(c *config.Config) { c.Server.Port = 70000 }, "invalid server.port"},
		{"missing read timeout", func(c *config.Config) { c.Server.ReadTimeout = 0 }, "server.read_timeout is required"},
		{"missing write timeout", func(c *config.Config) { c.Server.WriteTimeout = 0 }, "server.write_timeout is required"},
		{"negative rate limit", func(c *config.Config) { c.Server.RateLimit = -1 }, "server.rate_limit"},
		{"missing store type", func(c *config.Config) { c.Store.Type = "" }, "store.type is required"},
		{"sqlite without path", func(c *config.Config) { c.Store.Type = "sqlite" }, "store.path is required"},
		{"bad default priority", func(c *config.Config) { c.Broker.DefaultPriority = 2 }, "broker.default_priority"},
		{"negative workers", func(c *config.Config) { c.Workers.Generic = -1 }, "workers.generic"},
		{"unknown backend", func(c *config.Config) {
			c.Backends["retro_mystery"] = config.BackendConfig{Enabled: true, PredictionURL: "http://x"}
		}, "backends.retro_mystery: unknown backend"},
		{"enabled backend without url", func(c *config.Config) {
			c.Backends["retro_graph2smiles"] = config.BackendConfig{Enabled: true}
		}, "backends.retro_graph2smiles.prediction_url is required"},
		{"pool for unused queue", func(c *config.Config) {
			c.Workers.Pools = map[string]int{"retro_template_relevance": 2}
		}, "workers.pools.retro_template_relevance"},
		{"bad log level", func(c *config.Config) { c.Monitoring.Log.Level = "loud" }, "monitoring.log.level"},
		{"bad log format", func(c *config.Config) { c.Monitoring.Log.Format = "xml" }, "monitoring.log.format"},
		{"telemetry without path", func(c *config.Config) { c.Monitoring.Telemetry.Enabled = true }, "monitoring.telemetry.log_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidate_PoolsForGenericAndBackendQueues(t *testing.T) {
	cfg := baseConfig()
	cfg.Workers.Pools = map[string]int{"generic": 8, "retro_graph2smiles": 2}
	require.NoError(t, cfg.Validate())
}

func TestBackends_CustomQueue(t *testing.T) {
	backends := config.BackendsConfig{
		"retro_augmented_transformer": {Enabled: true, PredictionURL: "http://at", Queue: "seq"},
		"retro_graph2smiles":          {Enabled: true, PredictionURL: "http://g2s", Queue: "seq"},
		"context_recommender_graph":   {Enabled: false},
	}
	assert.Equal(t, []string{"seq"}, backends.Queues())
	assert.Equal(t, []string{"retro_augmented_transformer", "retro_graph2smiles"}, backends.Enabled())
}
