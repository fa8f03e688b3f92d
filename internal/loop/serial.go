package loop

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Serial is a Loop backed by one consumer goroutine. Posted callbacks run in
// FIFO order. The queue is unbounded so posting from inside a callback never
// blocks.
type Serial struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	started bool

	wake     chan struct{}
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	logger   *zap.Logger
}

// NewSerial creates a stopped loop. Call Start to begin processing.
func NewSerial(logger *zap.Logger) *Serial {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Serial{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Start begins the consumer goroutine. It processes callbacks until ctx is
// cancelled or Stop is called, then drains what is already queued.
func (s *Serial) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.wake:
				s.drain()
			case <-s.ctx.Done():
				s.mu.Lock()
				s.closed = true
				s.mu.Unlock()
				s.drain()
				return
			}
		}
	}()
}

// Stop cancels the loop context and waits for the consumer to finish.
// Work started with Go keeps running to completion; its callbacks are
// dropped.
func (s *Serial) Stop() {
	s.mu.Lock()
	cancel, started := s.cancel, s.started
	if !started {
		s.closed = true
	}
	s.mu.Unlock()
	cancel()
	if started {
		<-s.done
	}
}

// Wait blocks until all work started with Go has returned.
func (s *Serial) Wait() {
	s.inflight.Wait()
}

// Post schedules fn. Callbacks posted after shutdown are dropped.
func (s *Serial) Post(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Go runs work on a new goroutine and posts its callback. The work context
// carries the loop's values but is not cancelled by Stop.
func (s *Serial) Go(work func(ctx context.Context) func()) {
	s.mu.Lock()
	ctx := context.WithoutCancel(s.ctx)
	s.mu.Unlock()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if cb := work(ctx); cb != nil {
			s.Post(cb)
		}
	}()
}

// After posts fn once d has elapsed.
func (s *Serial) After(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { s.Post(fn) })
}

// Do posts fn and waits for it to finish.
func (s *Serial) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	s.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

func (s *Serial) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.run(fn)
	}
}

func (s *Serial) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("loop callback panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}
