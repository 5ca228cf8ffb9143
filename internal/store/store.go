// Package store provides the task result store for asynchronous dispatch.
//
// DESIGN: Every dispatched unit of work has one Record keyed by its task
// handle. A record lives for the retention window (TTL) counted from its
// last write, after which Get reports it as missing:
//
//	submitted -> queued -> running -> succeeded | failed -> (expired)
//
// Two implementations:
//   - MemoryStore: bounded expirable LRU, single process
//   - SQLiteStore: file-backed, finished results survive restarts
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/askcos/prediction-gateway/internal/monitoring"
)

// DefaultTTL is how long results remain retrievable.
const DefaultTTL = 30 * time.Minute

// Store types.
const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
)

// State is the lifecycle state of a task record.
type State string

const (
	StateSubmitted State = "submitted"
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Record is the stored state of one task.
type Record struct {
	Handle      string          `json:"task_id"`
	Adapter     string          `json:"adapter"`
	Queue       string          `json:"queue"`
	Priority    int             `json:"priority"`
	State       State           `json:"state"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Store persists task records for the retention window.
// Implementations are safe for concurrent use.
type Store interface {
	// Put inserts or replaces the record and restarts its retention window.
	Put(ctx context.Context, rec Record) error

	// Get returns the record if it exists and has not expired.
	Get(ctx context.Context, handle string) (Record, bool, error)

	// Close releases resources.
	Close() error
}

// Config configures the result store.
type Config struct {
	Type       string        `yaml:"type"`        // memory | sqlite
	Path       string        `yaml:"path"`        // sqlite database file
	TTL        time.Duration `yaml:"ttl"`         // retention window
	MaxEntries int           `yaml:"max_entries"` // memory only, 0 = unbounded
}

// Validate checks the store configuration.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeMemory:
	case TypeSQLite:
		if c.Path == "" {
			return fmt.Errorf("store.path is required for sqlite store")
		}
	case "":
		return fmt.Errorf("store.type is required")
	default:
		return fmt.Errorf("store: unknown type %q, must be 'memory' or 'sqlite'", c.Type)
	}
	if c.TTL < 0 {
		return fmt.Errorf("store.ttl must not be negative")
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("store.max_entries must not be negative")
	}
	return nil
}

// New builds the store selected by cfg. logger may be nil.
func New(cfg Config, logger *monitoring.Logger) (Store, error) {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	switch cfg.Type {
	case TypeSQLite:
		return NewSQLiteStore(cfg.Path, ttl, logger)
	case TypeMemory, "":
		return NewMemoryStore(ttl, cfg.MaxEntries), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
