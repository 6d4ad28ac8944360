// Package worker provides the serial background channel shared by model
// lifecycle hooks and any caller that needs ordered off-thread work.
package worker

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is a unit of background work. The context is cancelled when the
// worker is abandoned during Close.
type Task func(ctx context.Context)

type job struct {
	id       string
	name     string
	task     Task
	enqueued time.Time
}

// Serial runs submitted tasks one at a time, in submission order, on a single
// goroutine. The queue is unbounded so Submit never blocks, including when
// called from a running task.
type Serial struct {
	logger *slog.Logger

	mu        sync.Mutex
	queue     []job
	started   bool
	closed    bool
	abandoned bool

	wake   chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Serial worker.
type Option func(*Serial)

// WithLogger sets the logger used for task diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Serial) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a stopped worker. Tasks submitted before Start are queued.
func New(opts ...Option) *Serial {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Serial{
		logger: slog.Default(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start launches the worker goroutine. Calling it more than once is a no-op.
func (s *Serial) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.closed {
		return
	}
	s.started = true

	go s.loop()
}

// Submit enqueues a task and returns the id assigned to it.
func (s *Serial) Submit(name string, task Task) (string, error) {
	if task == nil {
		return "", ErrNilTask
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}

	id := uuid.NewString()
	s.queue = append(s.queue, job{id: id, name: name, task: task, enqueued: time.Now()})
	s.mu.Unlock()

	s.signal()
	return id, nil
}

// Pending returns the number of queued tasks that have not started yet.
func (s *Serial) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

// Close stops accepting tasks and waits until every queued task has run or
// ctx ends. When ctx ends first the running task's context is cancelled, the
// remaining queue is dropped and ctx.Err() is returned.
func (s *Serial) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.closed = true
	started := s.started
	dropped := len(s.queue)
	if !started {
		s.queue = nil
	}
	s.mu.Unlock()

	if !started {
		if dropped > 0 {
			s.logger.Warn("Background worker closed before start, dropping tasks", "dropped", dropped)
		}
		s.cancel()
		close(s.done)
		return nil
	}

	s.signal()

	select {
	case <-s.done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		s.abandoned = true
		dropped = len(s.queue)
		s.queue = nil
		s.mu.Unlock()

		s.cancel()
		s.signal()
		s.logger.Warn("Background worker drain interrupted", "dropped", dropped, "error", ctx.Err())
		return ctx.Err()
	}
}

func (s *Serial) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Serial) loop() {
	defer close(s.done)

	for {
		j, ok := s.next()
		if !ok {
			return
		}
		s.run(j)
	}
}

// next blocks until a task is available or the worker has nothing left to do.
func (s *Serial) next() (job, bool) {
	for {
		s.mu.Lock()
		if s.abandoned {
			s.mu.Unlock()
			return job{}, false
		}
		if len(s.queue) > 0 {
			j := s.queue[0]
			s.queue[0] = job{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return j, true
		}
		if s.closed {
			s.mu.Unlock()
			return job{}, false
		}
		s.mu.Unlock()

		<-s.wake
	}
}

func (s *Serial) run(j job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Background task panicked",
				"task", j.name,
				"task_id", j.id,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	s.logger.Debug("Background task started", "task", j.name, "task_id", j.id, "queued_for", start.Sub(j.enqueued))
	j.task(s.ctx)
	s.logger.Debug("Background task finished", "task", j.name, "task_id", j.id, "duration", time.Since(start))
}
