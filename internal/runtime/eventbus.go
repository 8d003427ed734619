package runtime

import (
	"context"
	"sync"
	"time"
)

// EventType represents the type of companion event.
type EventType string

const (
	EventTurnRecorded     EventType = "turn_recorded"
	EventFactsExtracted   EventType = "facts_extracted"
	EventExtractionFailed EventType = "extraction_failed"
	EventDreamGenerated   EventType = "dream_generated"
	EventPolicyViolation  EventType = "policy_violation"
	EventTaskFailed       EventType = "task_failed"
)

// Event represents a companion event with associated data.
type Event struct {
	Type      EventType
	Timestamp time.Time
	// Subject identifies what the event is about, such as a memory id or
	// a task name.
	Subject string
	Data    map[string]interface{}
}

// EventHandler is a function that handles events.
type EventHandler func(Event)

// EventBus manages event publication and subscription.
// Handlers run synchronously on the publishing goroutine.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types.
func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allHandlers = append(eb.allHandlers, handler)
}

// Publish sends an event to all registered handlers.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if handlers, ok := eb.handlers[event.Type]; ok {
		for _, handler := range handlers {
			handler(event)
		}
	}

	for _, handler := range eb.allHandlers {
		handler(event)
	}
}

// PublishWithData publishes an event with associated data.
func (eb *EventBus) PublishWithData(eventType EventType, subject string, data map[string]interface{}) {
	eb.Publish(Event{
		Type:    eventType,
		Subject: subject,
		Data:    data,
	})
}

// ForwardTaskErrors publishes an EventTaskFailed for every error read from
// errs until ctx is done or errs is closed.
func (eb *EventBus) ForwardTaskErrors(ctx context.Context, errs <-chan TaskError) {
	for {
		select {
		case <-ctx.Done():
			return
		case te, ok := <-errs:
			if !ok {
				return
			}
			eb.Publish(Event{
				Type:      EventTaskFailed,
				Timestamp: te.At,
				Subject:   te.Name,
				Data:      map[string]interface{}{"error": te.Err.Error()},
			})
		}
	}
}
