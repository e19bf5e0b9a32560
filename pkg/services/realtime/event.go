package realtime

import "time"

// Event is the {type, data} envelope of every server-to-client frame
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Live event types published to topics
const (
	EventNotification = "notification"
	EventMessage      = "message"
	EventUpdate       = "event_update"
)

// NewEvent builds an envelope
func NewEvent(eventType string, data interface{}) Event {
	return Event{Type: eventType, Data: data}
}

// Timestamp renders t the way every frame carries timestamps
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
