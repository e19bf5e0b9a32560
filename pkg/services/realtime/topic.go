package realtime

import (
	"fmt"
	"strings"
)

// TopicKind distinguishes per-user and per-event topics
type TopicKind string

const (
	TopicUser  TopicKind = "user"
	TopicEvent TopicKind = "event"
)

// Topic is a routing key for live events, rendered as "<kind>:<id>"
type Topic struct {
	Kind TopicKind
	ID   string
}

// UserTopic returns the topic carrying events about a user
func UserTopic(userID string) Topic {
	return Topic{Kind: TopicUser, ID: userID}
}

// EventTopic returns the topic carrying updates for a community event
func EventTopic(eventID string) Topic {
	return Topic{Kind: TopicEvent, ID: eventID}
}

// NewTopic validates kind and id
func NewTopic(kind, id string) (Topic, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Topic{}, fmt.Errorf("%w: target id is required", ErrInvalidTopic)
	}
	switch TopicKind(kind) {
	case TopicUser, TopicEvent:
		return Topic{Kind: TopicKind(kind), ID: id}, nil
	}
	return Topic{}, fmt.Errorf("%w: unknown subscription type %q", ErrInvalidTopic, kind)
}

// ParseTopic parses the "<kind>:<id>" form
func ParseTopic(s string) (Topic, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, s)
	}
	return NewTopic(kind, id)
}

func (t Topic) String() string {
	return string(t.Kind) + ":" + t.ID
}
