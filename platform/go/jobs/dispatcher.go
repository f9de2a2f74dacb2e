package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrQueueFull      = errors.New("job queue is full")
	ErrClosed         = errors.New("dispatcher is closed")
	ErrUnknownJobKind = errors.New("unknown job kind")
)

// Dispatcher is a bounded in-process worker pool feeding a Runner.
type Dispatcher struct {
	runner   *Runner
	logger   *zap.Logger
	workers  int
	queue    chan Payload
	handlers map[string]Handler

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

type DispatcherConfig struct {
	Workers   int
	QueueSize int
}

func NewDispatcher(runner *Runner, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if runner == nil {
		panic("dispatcher requires a runner")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64 * cfg.Workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		runner:   runner,
		logger:   logger.Named("dispatcher"),
		workers:  cfg.Workers,
		queue:    make(chan Payload, cfg.QueueSize),
		handlers: make(map[string]Handler),
	}
}

// Register binds kind to h. It must be called before Start.
func (d *Dispatcher) Register(kind string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		panic("jobs: Register called after Start")
	}
	d.handlers[kind] = h
}

// Start launches the workers. Jobs run on ctx with its cancellation removed so
// that Close can drain the queue after the server context ends.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	runCtx := context.WithoutCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for p := range d.queue {
				d.run(runCtx, p)
			}
		}()
	}
}

func (d *Dispatcher) run(ctx context.Context, p Payload) {
	h, ok := d.handlers[p.Kind]
	if !ok {
		d.logger.Error("dropping job", zap.String("kind", p.Kind), zap.Error(ErrUnknownJobKind))
		return
	}
	// Runner logs failures with full context.
	_ = d.runner.Run(ctx, p, h)
}

// Dispatch queues p without blocking.
func (d *Dispatcher) Dispatch(p Payload) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	if _, ok := d.handlers[p.Kind]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJobKind, p.Kind)
	}

	select {
	case d.queue <- p:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued jobs to finish or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain job queue: %w", ctx.Err())
	}
}
