package mqtt

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when the async queue cannot take another message.
var ErrQueueFull = errors.New("mqtt: publish queue full")

// ErrClosed is returned for publishes after Close.
var ErrClosed = errors.New("mqtt: publisher closed")

// Async hands publishes to a single background goroutine so callers never
// wait on the network. Order is preserved.
type Async struct {
	inner Publisher
	log   *zap.Logger
	queue chan func() error
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsync wraps inner with a queue of the given size.
func NewAsync(inner Publisher, size int, log *zap.Logger) *Async {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &Async{
		inner: inner,
		log:   log,
		queue: make(chan func() error, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for fn := range a.queue {
		if err := fn(); err != nil {
			a.log.Warn("mqtt publish failed", zap.Error(err))
		}
	}
}

func (a *Async) enqueue(kind string, fn func() error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- fn:
		return nil
	default:
		a.log.Warn("mqtt queue full, dropping message", zap.String("kind", kind))
		return ErrQueueFull
	}
}

// PublishSession queues a session.
func (a *Async) PublishSession(event SessionEvent) error {
	return a.enqueue("session", func() error { return a.inner.PublishSession(event) })
}

// PublishStatus queues a status change.
func (a *Async) PublishStatus(event StatusEvent) error {
	return a.enqueue("status", func() error { return a.inner.PublishStatus(event) })
}

// PublishSystem queues a system event.
func (a *Async) PublishSystem(event SystemEvent) error {
	return a.enqueue("system", func() error { return a.inner.PublishSystem(event) })
}

// IsConnected reports the wrapped publisher's connection state, or false if
// it does not track one.
func (a *Async) IsConnected() bool {
	if cs, ok := a.inner.(ConnectionStatus); ok {
		return cs.IsConnected()
	}
	return false
}

// Close stops accepting messages, waits (up to 5s) for the queue to drain and
// closes the wrapped publisher.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	select {
	case <-a.done:
	case <-time.After(5 * time.Second):
		a.log.Warn("mqtt queue did not drain before close")
	}
	return a.inner.Close()
}
