// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:     Warn when request exceeds threshold
//   - FlagUpstreamError:   Warn on backend 4xx/5xx or unparseable bodies
//   - FlagUpstreamTimeout: Error when a backend does not answer in time
//   - FlagTaskFailed:      Warn when an async task ends in failure
//   - FlagPanic:           Error on recovered panics
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 30 * time.Second
	}
	if logger == nil {
		logger = Nop()
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when request latency exceeds threshold.
func (am *AlertManager) FlagHighLatency(requestID string, latency time.Duration, path string) {
	if am == nil || latency < am.highLatencyThreshold {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Dur("latency", latency).
		Str("path", path).
		Msg("high_latency")
}

// FlagUpstreamError logs a failed backend response.
func (am *AlertManager) FlagUpstreamError(requestID, adapter string, statusCode int, err error) {
	if am == nil {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Str("adapter", adapter).
		Int("status", statusCode).
		Err(err).
		Msg("upstream_error")
}

// FlagUpstreamTimeout logs a backend timeout.
func (am *AlertManager) FlagUpstreamTimeout(requestID, adapter, targetURL string, timeout time.Duration) {
	if am == nil {
		return
	}
	am.logger.Error().
		Str("request_id", requestID).
		Str("adapter", adapter).
		Str("url", targetURL).
		Dur("timeout", timeout).
		Msg("upstream_timeout")
}

// FlagInvalidRequest logs a rejected input.
func (am *AlertManager) FlagInvalidRequest(requestID, adapter, reason string) {
	if am == nil {
		return
	}
	am.logger.Debug().
		Str("request_id", requestID).
		Str("adapter", adapter).
		Str("reason", reason).
		Msg("invalid_request")
}

// FlagTaskFailed logs an async task that ended in failure.
func (am *AlertManager) FlagTaskFailed(taskID, adapter string, statusCode int, reason string) {
	if am == nil {
		return
	}
	am.logger.Warn().
		Str("task_id", taskID).
		Str("adapter", adapter).
		Int("status", statusCode).
		Str("reason", reason).
		Msg("task_failed")
}

// FlagPanic logs recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	if am == nil {
		return
	}
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}
