// internal/handler/event_bus.go
package handler

import (
	"sync"

	"go.uber.org/zap"

	"screen-streamer/internal/model"
)

// AllEvents subscribes to every event type
const AllEvents model.EventType = "*"

// EventBus fans service events out to subscribers
type EventBus struct {
	subscribers map[model.EventType][]chan *model.ScreenEvent
	events      chan *model.ScreenEvent
	done        chan struct{}
	closeOnce   sync.Once
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[model.EventType][]chan *model.ScreenEvent),
		events:      make(chan *model.ScreenEvent, 1000),
		done:        make(chan struct{}),
		logger:      logger.With(zap.String("component", "event-bus")),
	}
}

// Start distributes events until Close is called
func (eb *EventBus) Start() {
	for {
		select {
		case event := <-eb.events:
			eb.distributeEvent(event)
		case <-eb.done:
			return
		}
	}
}

// Close stops distribution. Subscriber channels are left open.
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() { close(eb.done) })
}

// Publish queues an event; it never blocks the caller
func (eb *EventBus) Publish(event *model.ScreenEvent) {
	if event == nil {
		return
	}
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
		)
	}
}

// Subscribe subscribes to events of one type, or to AllEvents
func (eb *EventBus) Subscribe(eventType model.EventType) <-chan *model.ScreenEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan *model.ScreenEvent, 100)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	return subscriber
}

func (eb *EventBus) distributeEvent(event *model.ScreenEvent) {
	eb.mutex.RLock()
	subscribers := append([]chan *model.ScreenEvent(nil), eb.subscribers[event.EventType]...)
	subscribers = append(subscribers, eb.subscribers[AllEvents]...)
	eb.mutex.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			// slow subscriber
		}
	}
}
