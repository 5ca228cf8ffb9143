// Monitoring configuration - logging, telemetry, alerts and metrics.
//
// DESIGN: Separates logging (zerolog) from telemetry (JSONL files).
// Logging is for operators, telemetry is for queue/run-time analysis.
package config

import (
	"fmt"

	"github.com/askcos/prediction-gateway/internal/monitoring"
)

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	Log            monitoring.LoggerConfig    `yaml:"log"`
	Telemetry      monitoring.TelemetryConfig `yaml:"telemetry"`
	Alerts         monitoring.AlertConfig     `yaml:"alerts"`
	MetricsEnabled bool                       `yaml:"metrics_enabled"` // Serve /metrics
}

// Validate checks log settings and telemetry paths.
func (m *MonitoringConfig) Validate() error {
	switch m.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("monitoring.log.level: unknown level %q", m.Log.Level)
	}
	switch m.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("monitoring.log.format: must be 'json' or 'console', got %q", m.Log.Format)
	}
	if m.Telemetry.Enabled && m.Telemetry.LogPath == "" && !m.Telemetry.LogToStdout {
		return fmt.Errorf("monitoring.telemetry.log_path is required when telemetry is enabled")
	}
	if m.Alerts.HighLatencyThreshold < 0 {
		return fmt.Errorf("monitoring.alerts.high_latency_threshold must not be negative")
	}
	return nil
}
