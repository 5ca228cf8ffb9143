package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/askcos/prediction-gateway/internal/monitoring"
)

// Executor runs one claimed task and returns its result payload.
type Executor interface {
	Execute(ctx context.Context, task *Task) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task *Task) (json.RawMessage, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, task *Task) (json.RawMessage, error) {
	return f(ctx, task)
}

// Pool is a fixed set of workers consuming one queue. A worker holds at
// most one task at a time.
type Pool struct {
	broker   *Broker
	queue    string
	size     int
	executor Executor
	logger   *monitoring.Logger
	metrics  *monitoring.Metrics

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a pool of size workers for queue.
func NewPool(broker *Broker, queue string, size int, exec Executor) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		broker:   broker,
		queue:    queue,
		size:     size,
		executor: exec,
		logger:   broker.logger.With("queue", queue),
		metrics:  broker.metrics,
	}
}

// Queue returns the consumed queue name.
func (p *Pool) Queue() string { return p.queue }

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Start starts the workers. Calling Start twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.logger.Info().Int("workers", p.size).Msg("starting worker pool")
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.processTasks(ctx, i)
	}
}

// Stop stops claiming new tasks and waits for running ones to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Info().Msg("worker pool stopped")
}

func (p *Pool) processTasks(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		task, err := p.broker.Claim(ctx, p.queue)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, ErrQueueClosed) {
				p.logger.Error().Err(err).Int("worker", id).Msg("claim failed")
			}
			return
		}
		p.run(task, id)
	}
}

// run executes a claimed task to completion. Running work is never
// cancelled, so it gets a context detached from the pool's lifetime.
func (p *Pool) run(task *Task, id int) {
	p.metrics.WorkerBusy(p.queue, true)
	defer p.metrics.WorkerBusy(p.queue, false)

	ctx := context.Background()
	if task.RequestID != "" {
		ctx = monitoring.WithRequestIDContext(ctx, task.RequestID)
	}

	result, err := p.execute(ctx, task)
	if err != nil {
		p.logger.Warn().Err(err).Str("task_id", task.Handle).Int("worker", id).Msg("task failed")
		if ferr := p.broker.Fail(ctx, task, err); ferr != nil {
			p.logger.Error().Err(ferr).Str("task_id", task.Handle).Msg("failed to store task failure")
		}
		return
	}
	if cerr := p.broker.Complete(ctx, task, result); cerr != nil {
		p.logger.Error().Err(cerr).Str("task_id", task.Handle).Msg("failed to store task result")
		return
	}
	p.logger.Debug().Str("task_id", task.Handle).Int("worker", id).Msg("task succeeded")
}

func (p *Pool) execute(ctx context.Context, task *Task) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Str("task_id", task.Handle).Msg("task panicked")
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return p.executor.Execute(ctx, task)
}

// Workers runs one pool per broker queue.
type Workers struct {
	pools []*Pool
}

// NewWorkers creates a pool for every queue of broker, sized by cfg.
func NewWorkers(broker *Broker, cfg WorkersConfig, exec Executor) *Workers {
	w := &Workers{}
	for _, name := range broker.QueueNames() {
		w.pools = append(w.pools, NewPool(broker, name, cfg.SizeFor(name), exec))
	}
	return w
}

// Start starts every pool.
func (w *Workers) Start() {
	for _, p := range w.pools {
		p.Start()
	}
}

// Stop stops every pool and waits for running tasks.
func (w *Workers) Stop() {
	var wg sync.WaitGroup
	for _, p := range w.pools {
		wg.Add(1)
		go func(p *Pool) {
			defer wg.Done()
			p.Stop()
		}(p)
	}
	wg.Wait()
}

// Run starts the pools and stops them when ctx is done.
func (w *Workers) Run(ctx context.Context) error {
	w.Start()
	<-ctx.Done()
	w.Stop()
	return nil
}

// Sizes returns the pool size per queue.
func (w *Workers) Sizes() map[string]int {
	out := make(map[string]int, len(w.pools))
	for _, p := range w.pools {
		out[p.Queue()] = p.Size()
	}
	return out
}
