package events

import "time"

// Event is the contract for everything published on the analytics bus.
type Event interface {
	// EventType is the stable code consumers dispatch on, e.g.
	// "ANSWER_COMPLETED".
	EventType() string

	// Payload is the event body. Answer events carry run metadata only,
	// never the answer text itself.
	Payload() map[string]interface{}

	// Timestamp is when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is a plain Event value. Producers fill it inline; there is no
// per-event-type struct zoo.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string { return e.Type }

func (e BaseEvent) Payload() map[string]interface{} { return e.Data }

func (e BaseEvent) Timestamp() time.Time { return e.OccurredAt }
