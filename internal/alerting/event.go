package alerting

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// AlertEvent is a traffic transition or summary published to sinks.
type AlertEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Rate      float64   `json:"rate,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Lines     []string  `json:"lines,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTransitionEvent builds the event for an alert state change.
func NewTransitionEvent(t Transition) *AlertEvent {
	return &AlertEvent{
		ID:        uuid.NewString(),
		Kind:      t.Kind,
		Message:   t.Message,
		Rate:      t.Rate,
		Threshold: t.Threshold,
		Timestamp: t.At,
	}
}

// NewSummaryEvent builds the event for a periodic summary block. The first
// line becomes the message.
func NewSummaryEvent(lines []string, at time.Time) *AlertEvent {
	e := &AlertEvent{
		ID:        uuid.NewString(),
		Kind:      KindTrafficSummary,
		Lines:     append([]string(nil), lines...),
		Timestamp: at,
	}
	if len(lines) > 0 {
		e.Message = lines[0]
	}
	return e
}

// IsTransition reports whether the event is an alert or a recovery.
func (e *AlertEvent) IsTransition() bool {
	return e.Kind == KindTrafficElevated || e.Kind == KindTrafficRecovered
}

// AlertEventHandler processes alert events.
type AlertEventHandler func(event *AlertEvent)

const (
	// eventBusBufferSize is the capacity of the async event channel.
	// Events are dropped if the buffer is full to avoid blocking callers.
	eventBusBufferSize = 1000
)

// AlertEventBus is an async pub/sub for alert events. Publish is non-blocking:
// events are sent to a buffered channel and processed by a worker goroutine,
// so the ingest loop is never blocked by DB writes or notification dispatch.
type AlertEventBus struct {
	handlers []AlertEventHandler
	mu       sync.RWMutex
	eventCh  chan *AlertEvent
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	dropped  atomic.Uint64
}

// NewAlertEventBus creates a new alert event bus and starts its worker.
func NewAlertEventBus() *AlertEventBus {
	return newAlertEventBus(eventBusBufferSize)
}

func newAlertEventBus(size int) *AlertEventBus {
	b := &AlertEventBus{
		handlers: make([]AlertEventHandler, 0),
		eventCh:  make(chan *AlertEvent, size),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go b.processLoop()
	return b
}

// Subscribe registers a handler for alert events.
func (b *AlertEventBus) Subscribe(handler AlertEventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish enqueues an event for async processing. If the buffer is full the
// event is dropped and counted. Events published after Stop are discarded.
// Returns whether the event was queued.
func (b *AlertEventBus) Publish(event *AlertEvent) bool {
	select {
	case <-b.stopCh:
		return false
	default:
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	select {
	case b.eventCh <- event:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *AlertEventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Stop shuts down the worker goroutine after it has delivered every queued
// event, and waits for it to exit. Safe to call multiple times.
func (b *AlertEventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.doneCh
}

// processLoop drains the event channel and dispatches to handlers.
func (b *AlertEventBus) processLoop() {
	defer close(b.doneCh)
	for {
		select {
		case event := <-b.eventCh:
			b.dispatch(event)
		case <-b.stopCh:
			// Drain remaining events before exiting
			for {
				select {
				case event := <-b.eventCh:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *AlertEventBus) dispatch(event *AlertEvent) {
	b.mu.RLock()
	handlers := make([]AlertEventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.safeCall(handler, event)
	}
}

// safeCall invokes a handler with panic recovery so a panicking handler
// cannot kill the event bus goroutine.
func (b *AlertEventBus) safeCall(handler AlertEventHandler, event *AlertEvent) {
	defer func() {
		// Handlers do their own logging; a panic here is swallowed.
		recover() //nolint:errcheck // intentionally swallowed to keep bus alive
	}()
	handler(event)
}
