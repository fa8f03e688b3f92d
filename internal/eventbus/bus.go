// Package eventbus provides an in-process pub/sub bus for write outcomes.
// Views publish after each acknowledgement; subscribers process events
// asynchronously on a single consumer goroutine.
package eventbus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Handler processes an event. Handlers run on the bus goroutine one at a
// time.
type Handler interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Bus is a simple in-process event bus. Events are published to a buffered
// channel and dispatched to all subscribers in order.
type Bus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers []namedHandler
	stopped     bool

	events chan Event
	quit   chan struct{}
	done   chan struct{}
}

type namedHandler struct {
	name    string
	handler Handler
}

// New creates a Bus with the given channel buffer size.
func New(bufSize int, logger *zap.Logger) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger: logger,
		events: make(chan Event, bufSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Subscribe registers a named handler. Must be called before Start.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, namedHandler{name: name, handler: h})
}

// Publish queues evt. Non-blocking: when the buffer is full or the bus has
// stopped the event is dropped and a warning is logged.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		b.logger.Warn("eventbus: stopped, dropping event", zap.String("type", evt.Type), zap.String("id", evt.ID))
		return
	}
	select {
	case b.events <- evt:
	default:
		b.logger.Warn("eventbus: buffer full, dropping event", zap.String("type", evt.Type), zap.String("id", evt.ID))
	}
}

// Start begins the consumer goroutine. It processes events until ctx is
// cancelled or Stop is called, then drains what is already queued.
func (b *Bus) Start(ctx context.Context) {
	go func() {
		defer close(b.done)
		for {
			select {
			case evt := <-b.events:
				b.dispatch(ctx, evt)
			case <-ctx.Done():
				b.drain(ctx)
				return
			case <-b.quit:
				b.drain(ctx)
				return
			}
		}
	}()
}

func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case evt := <-b.events:
			b.dispatch(ctx, evt)
		default:
			return
		}
	}
}

// Stop refuses further events and waits for the consumer to finish. The
// bus must have been started.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.stopped = true
	b.mu.Unlock()
	close(b.quit)
	<-b.done
}

func (b *Bus) dispatch(ctx context.Context, evt Event) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.handler.HandleEvent(ctx, evt); err != nil {
			b.logger.Error("eventbus: handler error",
				zap.String("handler", s.name),
				zap.String("type", evt.Type),
				zap.Error(err),
			)
		}
	}
}
