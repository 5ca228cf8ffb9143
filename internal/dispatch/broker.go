package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/askcos/prediction-gateway/internal/monitoring"
	"github.com/askcos/prediction-gateway/internal/store"
)

var (
	// ErrTaskNotFound means the handle is unknown or its record expired.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskPending means the task exists but has not finished.
	ErrTaskPending = errors.New("task pending")
	// ErrTaskNotStarted is stored on tasks a worker claimed but could not
	// mark running.
	ErrTaskNotStarted = errors.New("task could not be started")
)

// Broker owns the priority channels and records every task transition in
// the result store.
type Broker struct {
	store   store.Store
	queues  map[string]*PriorityQueue
	logger  *monitoring.Logger
	metrics *monitoring.Metrics
	tracker *monitoring.Tracker
	alerts  *monitoring.AlertManager
	now     func() time.Time
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the broker logger.
func WithLogger(l *monitoring.Logger) Option {
	return func(b *Broker) { b.logger = l.Component("dispatch") }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// WithTracker records a telemetry event per finished task.
func WithTracker(t *monitoring.Tracker) Option {
	return func(b *Broker) { b.tracker = t }
}

// WithAlerts flags failed tasks.
func WithAlerts(a *monitoring.AlertManager) Option {
	return func(b *Broker) { b.alerts = a }
}

// NewBroker creates a broker with one priority channel per queue name.
// The generic queue always exists.
func NewBroker(st store.Store, cfg Config, queues []string, opts ...Option) *Broker {
	b := &Broker{
		store:  st,
		queues: make(map[string]*PriorityQueue, len(queues)+1),
		logger: monitoring.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.queues[GenericQueue] = NewPriorityQueue(GenericQueue, cfg.QueueCapacity)
	for _, name := range queues {
		if name == "" {
			continue
		}
		if _, ok := b.queues[name]; !ok {
			b.queues[name] = NewPriorityQueue(name, cfg.QueueCapacity)
		}
	}
	return b
}

// Queue returns the channel for name, falling back to the generic queue.
func (b *Broker) Queue(name string) *PriorityQueue {
	if q, ok := b.queues[name]; ok {
		return q
	}
	return b.queues[GenericQueue]
}

// QueueNames returns all queue names, sorted.
func (b *Broker) QueueNames() []string {
	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Submit records a new task and enqueues it. It never waits for execution.
func (b *Broker) Submit(ctx context.Context, adapter, queue string, payload json.RawMessage, priority Priority) (string, error) {
	q := b.Queue(queue)
	priority = ClampPriority(int(priority))

	task := &Task{
		Handle:      uuid.NewString(),
		Adapter:     adapter,
		Queue:       q.Name(),
		Priority:    priority,
		Payload:     payload,
		RequestID:   monitoring.RequestIDFromContext(ctx),
		SubmittedAt: b.now(),
	}

	rec := store.Record{
		Handle:      task.Handle,
		Adapter:     adapter,
		Queue:       task.Queue,
		Priority:    int(priority),
		State:       store.StateSubmitted,
		SubmittedAt: task.SubmittedAt,
	}
	if err := b.store.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("record submission: %w", err)
	}

	rec.State = store.StateQueued
	if err := b.store.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("record queued: %w", err)
	}

	if err := q.Push(task); err != nil {
		completed := b.now()
		rec.State = store.StateFailed
		rec.StatusCode = http.StatusServiceUnavailable
		rec.Error = err.Error()
		rec.CompletedAt = &completed
		if perr := b.store.Put(ctx, rec); perr != nil {
			b.logger.Error().Err(perr).Str("task_id", task.Handle).Msg("failed to record rejected task")
		}
		b.metrics.IncTaskFinished(task.Queue, string(store.StateFailed))
		return "", err
	}

	b.metrics.IncTaskSubmitted(task.Queue, int(priority))
	b.reportDepth(q)
	b.logger.Debug().
		Str("task_id", task.Handle).
		Str("adapter", adapter).
		Str("queue", task.Queue).
		Int("priority", int(priority)).
		Msg("task queued")
	return task.Handle, nil
}

// Claim blocks until a task of queue can be handed to the caller and marks
// it running. Tasks whose record expired while waiting are dropped.
func (b *Broker) Claim(ctx context.Context, queue string) (*Task, error) {
	q := b.Queue(queue)
	for {
		task, err := q.Pop(ctx)
		if err != nil {
			return nil, err
		}
		b.reportDepth(q)

		rec, ok, err := b.store.Get(ctx, task.Handle)
		if err != nil {
			b.logger.Error().Err(err).Str("task_id", task.Handle).Msg("failed to load task record")
			b.abandon(ctx, task, nil)
			continue
		}
		if !ok {
			b.logger.Debug().Str("task_id", task.Handle).Msg("dropping expired task")
			continue
		}

		task.StartedAt = b.now()
		rec.State = store.StateRunning
		rec.StartedAt = &task.StartedAt
		if err := b.store.Put(ctx, rec); err != nil {
			b.logger.Error().Err(err).Str("task_id", task.Handle).Msg("failed to mark task running")
			b.abandon(ctx, task, &rec)
			continue
		}
		return task, nil
	}
}

// abandon records a claimed task that cannot be started as failed so
// Retrieve does not report it pending until it expires. rec is the loaded
// record, or nil to rebuild it from the task. Best effort.
func (b *Broker) abandon(ctx context.Context, task *Task, rec *store.Record) {
	failed := store.Record{
		Handle:      task.Handle,
		Adapter:     task.Adapter,
		Queue:       task.Queue,
		Priority:    int(task.Priority),
		SubmittedAt: task.SubmittedAt,
	}
	if rec != nil {
		failed = *rec
		failed.StartedAt = nil
	}
	completed := b.now()
	failed.State = store.StateFailed
	failed.StatusCode = http.StatusInternalServerError
	failed.Error = ErrTaskNotStarted.Error()
	failed.CompletedAt = &completed

	if err := b.store.Put(context.WithoutCancel(ctx), failed); err != nil {
		b.logger.Error().Err(err).Str("task_id", task.Handle).Msg("failed to record abandoned task")
		return
	}
	b.metrics.IncTaskFinished(task.Queue, string(store.StateFailed))
	b.alerts.FlagTaskFailed(task.Handle, task.Adapter, failed.StatusCode, failed.Error)
}

// Complete stores the result of a successful task.
func (b *Broker) Complete(ctx context.Context, task *Task, result json.RawMessage) error {
	return b.finish(ctx, task, store.StateSucceeded, http.StatusOK, result, "")
}

// Fail stores the failure of a task. The status code comes from err when it
// implements StatusCode() int, otherwise 500. The stored message comes from
// PublicMessage() string when implemented.
func (b *Broker) Fail(ctx context.Context, task *Task, err error) error {
	status := http.StatusInternalServerError
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		status = coded.StatusCode()
	}
	msg := err.Error()
	var public interface{ PublicMessage() string }
	if errors.As(err, &public) {
		msg = public.PublicMessage()
	}
	b.alerts.FlagTaskFailed(task.Handle, task.Adapter, status, err.Error())
	return b.finish(ctx, task, store.StateFailed, status, nil, msg)
}

func (b *Broker) finish(ctx context.Context, task *Task, state store.State, status int, result json.RawMessage, errMsg string) error {
	rec, ok, err := b.store.Get(ctx, task.Handle)
	if err != nil {
		return fmt.Errorf("load task %s: %w", task.Handle, err)
	}
	if !ok {
		return ErrTaskNotFound
	}

	completed := b.now()
	rec.State = state
	rec.StatusCode = status
	rec.Result = result
	rec.Error = errMsg
	rec.CompletedAt = &completed
	if err := b.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("store result %s: %w", task.Handle, err)
	}

	b.metrics.IncTaskFinished(task.Queue, string(state))
	b.tracker.RecordTask(&monitoring.TaskEvent{
		TaskID:      task.Handle,
		Timestamp:   completed,
		Adapter:     task.Adapter,
		Queue:       task.Queue,
		Priority:    int(task.Priority),
		State:       string(state),
		StatusCode:  status,
		Error:       errMsg,
		QueueWaitMs: task.StartedAt.Sub(task.SubmittedAt).Milliseconds(),
		RunMs:       completed.Sub(task.StartedAt).Milliseconds(),
	})
	return nil
}

// Lookup returns the current record for handle. It never mutates state.
func (b *Broker) Lookup(ctx context.Context, handle string) (store.Record, error) {
	rec, ok, err := b.store.Get(ctx, handle)
	if err != nil {
		return store.Record{}, err
	}
	if !ok {
		return store.Record{}, ErrTaskNotFound
	}
	return rec, nil
}

// Depths returns waiting tasks per priority level for every queue.
func (b *Broker) Depths() map[string][NumPriorities]int {
	out := make(map[string][NumPriorities]int, len(b.queues))
	for name, q := range b.queues {
		out[name] = q.Depth()
	}
	return out
}

// Close closes every queue. Waiting tasks stay claimable until drained.
func (b *Broker) Close() {
	for _, q := range b.queues {
		q.Close()
	}
}

func (b *Broker) reportDepth(q *PriorityQueue) {
	if b.metrics == nil {
		return
	}
	for level, depth := range q.Depth() {
		b.metrics.SetQueueDepth(q.Name(), level, depth)
	}
}
