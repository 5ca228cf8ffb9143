// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by gateway/, dispatch/ and monitoring/.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - TaskEvent:    Telemetry data for each finished async task
//   - Outcome:      Result label for backend calls and tasks
//   - Config types: TelemetryConfig, LoggerConfig, AlertConfig
package monitoring

import "time"

// =============================================================================
// OUTCOMES - Labels shared by metrics and telemetry
// =============================================================================

// Outcome labels how a backend call or task ended.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeUpstream Outcome = "upstream_error"
	OutcomeInvalid  Outcome = "invalid"
	OutcomeError    Outcome = "error"
)

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// TaskEvent captures one asynchronous task after it reaches a terminal state.
type TaskEvent struct {
	TaskID      string    `json:"task_id"`
	Timestamp   time.Time `json:"timestamp"`
	Adapter     string    `json:"adapter"`
	Queue       string    `json:"queue"`
	Priority    int       `json:"priority"`
	State       string    `json:"state"`
	StatusCode  int       `json:"status_code"`
	Error       string    `json:"error,omitempty"`
	QueueWaitMs int64     `json:"queue_wait_ms"`
	RunMs       int64     `json:"run_ms"`
	Worker      int       `json:"worker"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}
