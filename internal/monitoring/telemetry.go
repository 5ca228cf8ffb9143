// Package monitoring - telemetry.go records task events to a JSONL file.
//
// DESIGN: Tracker appends one TaskEvent per finished async task
// (one JSON object per line) immediately after the task completes, so the
// file can be tailed for queue-wait and run-time analysis.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to file and stdout.
type Tracker struct {
	config     TelemetryConfig
	logPath    string
	eventCount int
	mu         sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{config: cfg}

	if !cfg.Enabled || cfg.LogPath == "" {
		return t, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
		return nil, err
	}
	t.logPath = cfg.LogPath
	if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
		if f, err := os.Create(cfg.LogPath); err == nil {
			f.Close()
		}
	}
	return t, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// RecordTask records a finished task.
func (t *Tracker) RecordTask(event *TaskEvent) {
	if t == nil || !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		log.Info().
			Str("task_id", event.TaskID).
			Str("adapter", event.Adapter).
			Str("state", event.State).
			Int64("run_ms", event.RunMs).
			Msg("telemetry")
	}

	if t.logPath != "" {
		if err := appendJSONL(t.logPath, event); err != nil {
			log.Error().Err(err).Str("path", t.logPath).Msg("telemetry: failed to write task event")
		} else {
			t.eventCount++
		}
	}
}

// Events returns how many events were written.
func (t *Tracker) Events() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eventCount
}

// Close logs a summary of the session.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.logPath != "" && t.eventCount > 0 {
		log.Info().
			Str("path", t.logPath).
			Int("events", t.eventCount).
			Msg("telemetry: session complete")
	}
	return nil
}
