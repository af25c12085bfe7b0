// Package pipeline runs ingestion work on a fixed number of workers behind a
// bounded queue. A full queue rejects new work instead of growing.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/selfie-finder/internal/logging"
	"github.com/kozaktomas/selfie-finder/internal/metrics"
)

var (
	// ErrQueueFull is returned by TrySubmit when no queue slot is free.
	ErrQueueFull = errors.New("pipeline queue is full")
	// ErrClosed is returned when submitting to a closed pool.
	ErrClosed = errors.New("pipeline is closed")
)

// Task is one unit of work. Its context is detached from the submitter and
// only cancelled by Close timing out, so started tasks run to completion.
type Task func(ctx context.Context)

// Options configures a Pool.
type Options struct {
	Workers   int
	QueueSize int
	Name      string // queue label for metrics
	Logger    *slog.Logger
	Observer  metrics.Observer
}

// Pool is a bounded worker pool.
type Pool struct {
	name     string
	tasks    chan Task
	log      *slog.Logger
	observer metrics.Observer

	mu     sync.RWMutex
	closed bool

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New starts opts.Workers workers. Non-positive sizes default to one worker
// and a queue of 64.
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Name == "" {
		opts.Name = "ingest"
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:     opts.Name,
		tasks:    make(chan Task, opts.QueueSize),
		log:      logging.OrNoop(opts.Logger),
		observer: metrics.OrNop(opts.Observer),
		cancel:   cancel,
	}

	p.group = &errgroup.Group{}
	for i := 0; i < opts.Workers; i++ {
		p.group.Go(func() error {
			p.work(ctx)
			return nil
		})
	}
	return p
}

func (p *Pool) work(ctx context.Context) {
	for task := range p.tasks {
		p.observer.OnQueueDepth(p.name, len(p.tasks))
		p.run(ctx, task)
	}
}

func (p *Pool) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pipeline task panicked", "queue", p.name, "panic", r)
		}
	}()
	task(ctx)
}

// TrySubmit enqueues task without blocking.
func (p *Pool) TrySubmit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		p.observer.OnQueueDepth(p.name, len(p.tasks))
		return nil
	default:
		p.observer.OnBackpressure(p.name)
		return ErrQueueFull
	}
}

// Submit enqueues task, waiting for a free slot until ctx is done.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		p.observer.OnQueueDepth(p.name, len(p.tasks))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do submits task with TrySubmit and waits for it to finish or ctx to end.
// The task keeps running if ctx ends first.
func (p *Pool) Do(ctx context.Context, task Task) error {
	done := make(chan struct{})
	err := p.TrySubmit(func(tctx context.Context) {
		defer close(done)
		task(tctx)
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.tasks)
}

// Capacity returns the queue size.
func (p *Pool) Capacity() int {
	return cap(p.tasks)
}

// Close stops accepting work and waits for queued and running tasks. If ctx
// ends first the task context is cancelled and ctx.Err() is returned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
