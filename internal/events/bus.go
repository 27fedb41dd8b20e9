package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the engine
type EventType string

const (
	EventEngineStarted   EventType = "ENGINE_STARTED"
	EventEngineStopped   EventType = "ENGINE_STOPPED"
	EventEnginePaused    EventType = "ENGINE_PAUSED"
	EventEngineResumed   EventType = "ENGINE_RESUMED"
	EventFeedConnected   EventType = "FEED_CONNECTED"
	EventFeedDisconnected EventType = "FEED_DISCONNECTED"
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventSignalBlocked   EventType = "SIGNAL_BLOCKED"
	EventOrderSubmitted  EventType = "ORDER_SUBMITTED"
	EventOrderFailed     EventType = "ORDER_FAILED"
	EventPositionOpened  EventType = "POSITION_OPENED"
	EventPositionUpdate  EventType = "POSITION_UPDATE"
	EventPositionClosed  EventType = "POSITION_CLOSED"
	EventBreakerUpdate   EventType = "CIRCUIT_BREAKER_UPDATE"
	EventThreatUpdate    EventType = "THREAT_LEVEL_UPDATE"
	EventModeUpdate      EventType = "MODE_UPDATE"
	EventBalanceUpdate   EventType = "BALANCE_UPDATE"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event type
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all matching subscribers asynchronously
func (eb *EventBus) Publish(eventType EventType, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	eb.mu.RLock()
	subs := make([]Subscriber, 0, len(eb.subscribers[eventType])+len(eb.allSubs))
	subs = append(subs, eb.subscribers[eventType]...)
	subs = append(subs, eb.allSubs...)
	eb.mu.RUnlock()

	for _, sub := range subs {
		go sub(event)
	}
}

var (
	defaultBus   *EventBus
	defaultBusMu sync.RWMutex
)

// SetDefault installs the process-wide bus used by the Broadcast helpers.
func SetDefault(bus *EventBus) {
	defaultBusMu.Lock()
	defer defaultBusMu.Unlock()
	defaultBus = bus
}

func publishDefault(eventType EventType, data map[string]interface{}) {
	defaultBusMu.RLock()
	bus := defaultBus
	defaultBusMu.RUnlock()
	if bus != nil {
		bus.Publish(eventType, data)
	}
}

// BroadcastCircuitBreaker broadcasts circuit breaker state
func BroadcastCircuitBreaker(data map[string]interface{}) {
	publishDefault(EventBreakerUpdate, data)
}

// BroadcastPositionUpdate broadcasts a position change
func BroadcastPositionUpdate(data map[string]interface{}) {
	publishDefault(EventPositionUpdate, data)
}

// BroadcastSignal broadcasts a generated signal
func BroadcastSignal(data map[string]interface{}) {
	publishDefault(EventSignalGenerated, data)
}

// BroadcastModeUpdate broadcasts an edge-detector mode change
func BroadcastModeUpdate(data map[string]interface{}) {
	publishDefault(EventModeUpdate, data)
}

// BroadcastSystemStatus broadcasts engine status transitions
func BroadcastSystemStatus(eventType EventType, data map[string]interface{}) {
	publishDefault(eventType, data)
}
