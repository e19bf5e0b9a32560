package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jgirmay/circle_realtime/pkg/services/realtime"
)

// Client message types
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeHeartbeat   = "heartbeat"
	TypePing        = "ping"
	TypeMessage     = "message"
)

// Server acknowledgement types
const (
	TypeConnected    = "connected"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeHeartbeatAck = "heartbeat_ack"
	TypePong         = "pong"
	TypeError        = "error"
)

// ProtocolError is a client frame that could not be accepted. Message is
// sent back to the client verbatim in an error frame.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

func protocolErrorf(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Message: fmt.Sprintf(format, args...)}
}

// ClientMessage is one decoded client frame. The concrete types below are
// the only implementations.
type ClientMessage interface {
	clientMessage()
}

// Subscribe asks to receive events for Topic
type Subscribe struct{ Topic realtime.Topic }

// Unsubscribe stops events for Topic
type Unsubscribe struct{ Topic realtime.Topic }

// Heartbeat refreshes presence and asks for the connection age
type Heartbeat struct{}

// Ping asks for a pong
type Ping struct{}

// Message is free text relayed to the sender's followers
type Message struct{ Text string }

func (Subscribe) clientMessage()   {}
func (Unsubscribe) clientMessage() {}
func (Heartbeat) clientMessage()   {}
func (Ping) clientMessage()        {}
func (Message) clientMessage()     {}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type subscriptionData struct {
	SubscriptionType string `json:"subscription_type"`
	TargetID         string `json:"target_id"`
}

type messageData struct {
	Message string `json:"message"`
}

// Decode validates a raw client frame and returns its typed form. Failures
// are always *ProtocolError.
func Decode(raw []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, protocolErrorf("Invalid JSON format")
	}

	switch env.Type {
	case TypeSubscribe, TypeUnsubscribe:
		var data subscriptionData
		if err := decodeData(env.Data, &data); err != nil {
			return nil, err
		}
		topic, err := realtime.NewTopic(data.SubscriptionType, data.TargetID)
		if err != nil {
			return nil, protocolErrorf("Invalid subscription: %v", err)
		}
		if env.Type == TypeSubscribe {
			return Subscribe{Topic: topic}, nil
		}
		return Unsubscribe{Topic: topic}, nil

	case TypeHeartbeat:
		return Heartbeat{}, nil

	case TypePing:
		return Ping{}, nil

	case TypeMessage:
		var data messageData
		if err := decodeData(env.Data, &data); err != nil {
			return nil, err
		}
		if strings.TrimSpace(data.Message) == "" {
			return nil, protocolErrorf("Message text is required")
		}
		return Message{Text: data.Message}, nil
	}

	return nil, protocolErrorf("Unknown message type: %s", env.Type)
}

func decodeData(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return protocolErrorf("Invalid message data")
	}
	return nil
}

// Outbound frame payloads

type connectedData struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
	Timestamp    string `json:"timestamp"`
}

type subscriptionAck struct {
	SubscriptionType string `json:"subscription_type"`
	TargetID         string `json:"target_id"`
}

type heartbeatAck struct {
	Timestamp       string  `json:"timestamp"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type timestampData struct {
	Timestamp string `json:"timestamp"`
}

type errorData struct {
	Message string `json:"message"`
}

type relayedMessage struct {
	FromUserID   string `json:"from_user_id"`
	ConnectionID string `json:"connection_id"`
	Message      string `json:"message"`
	Timestamp    string `json:"timestamp"`
}

func connectedFrame(connectionID, userID string, at time.Time) realtime.Event {
	return realtime.NewEvent(TypeConnected, connectedData{connectionID, userID, realtime.Timestamp(at)})
}

func subscriptionFrame(ackType string, topic realtime.Topic) realtime.Event {
	return realtime.NewEvent(ackType, subscriptionAck{string(topic.Kind), topic.ID})
}

func heartbeatFrame(at time.Time, duration float64) realtime.Event {
	return realtime.NewEvent(TypeHeartbeatAck, heartbeatAck{realtime.Timestamp(at), duration})
}

func pongFrame(at time.Time) realtime.Event {
	return realtime.NewEvent(TypePong, timestampData{realtime.Timestamp(at)})
}

func errorFrame(message string) realtime.Event {
	return realtime.NewEvent(TypeError, errorData{message})
}
