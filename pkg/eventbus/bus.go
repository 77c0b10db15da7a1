// Package eventbus is an in-process fire-and-forget publish/subscribe hub.
// Publishers never block: a subscriber whose buffer is full misses the event.
package eventbus

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event names published by the trading engines.
const (
	EventScanComplete     = "scan_complete"
	EventTradeExecuted    = "trade_executed"
	EventTradeClosed      = "trade_closed"
	EventSnipeCopied      = "snipe:copied"
	EventSnipeClosed      = "snipe:closed"
	EventAnalysisComplete = "analysis:complete"
	EventTradeResolved    = "trade:resolved"
	EventError            = "error"
)

// Event is a single published notification.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher is implemented by Bus. Engines depend on this interface only.
type Publisher interface {
	Publish(eventType string, data interface{})
}

// Bus fans published events out to subscribers.
type Bus struct {
	mu         sync.RWMutex
	subs       map[int]chan Event
	nextID     int
	bufferSize int
	logger     *zap.Logger
}

// New creates a Bus with the given per-subscriber buffer size.
func New(bufferSize int, logger *zap.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subs:       make(map[int]chan Event),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(eventType string, data interface{}) {
	evt := Event{Type: eventType, Data: data, Timestamp: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()

	EventsPublishedTotal.WithLabelValues(eventType).Inc()
	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			EventsDroppedTotal.WithLabelValues(eventType).Inc()
			b.logger.Debug("event-dropped",
				zap.String("event-type", eventType),
				zap.Int("subscriber-id", id))
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufferSize)
	b.subs[id] = ch
	SubscribersGauge.Set(float64(len(b.subs)))

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
			SubscribersGauge.Set(float64(len(b.subs)))
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Nop is a Publisher that discards events.
type Nop struct{}

// Publish discards the event.
func (Nop) Publish(string, interface{}) {}
