// Package realtime tracks live connections and routes events to their subscribers.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jgirmay/circle_realtime/pkg/metrics"
)

// DefaultSendTimeout bounds a single send to one connection
const DefaultSendTimeout = 5 * time.Second

// Channel is the transport handle of a live connection
type Channel interface {
	// Send delivers one encoded frame, honoring ctx cancellation
	Send(ctx context.Context, payload []byte) error

	// Close tears the transport down. It must be safe to call more than once.
	Close() error
}

// PresenceSink receives connection lifecycle events for durable history
type PresenceSink interface {
	RecordConnect(ctx context.Context, userID, connectionID string, connectedAt time.Time) error
	RecordDisconnect(ctx context.Context, connectionID string, disconnectedAt time.Time, durationSeconds float64) error
}

// HeartbeatSink is implemented by sinks that also track liveness
type HeartbeatSink interface {
	RecordHeartbeat(ctx context.Context, connectionID string) error
}

// Connection is one live channel owned by the registry
type Connection struct {
	ID            string
	UserID        string
	Channel       Channel
	ConnectedAt   time.Time
	LastHeartbeat time.Time
}

// ConnectionInfo is a read-only view of a connection
type ConnectionInfo struct {
	ConnectionID    string    `json:"connection_id"`
	UserID          string    `json:"user_id"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// Stats summarizes the registry contents
type Stats struct {
	TotalConnections   int `json:"active_connections"`
	UniqueUsers        int `json:"active_users"`
	UserSubscriptions  int `json:"user_subscriptions"`
	EventSubscriptions int `json:"event_subscriptions"`
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithClock overrides the time source
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithPresenceSink attaches durable presence recording
func WithPresenceSink(sink PresenceSink) RegistryOption {
	return func(r *Registry) { r.sink = sink }
}

// WithSendTimeout overrides DefaultSendTimeout
func WithSendTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.sendTimeout = d
		}
	}
}

// WithMetrics attaches Prometheus collectors
func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// Registry is the process-wide index of live connections and their
// subscriptions. One lock guards the connection map and both topic indexes.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]*Connection
	byUser     map[string]map[string]struct{}
	topics     map[Topic]map[string]struct{}
	connTopics map[string]map[Topic]struct{}

	sink        PresenceSink
	metrics     *metrics.Metrics
	now         func() time.Time
	sendTimeout time.Duration
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		conns:       make(map[string]*Connection),
		byUser:      make(map[string]map[string]struct{}),
		topics:      make(map[Topic]map[string]struct{}),
		connTopics:  make(map[string]map[Topic]struct{}),
		now:         time.Now,
		sendTimeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a connection and records its presence
func (r *Registry) Register(ctx context.Context, connectionID, userID string, ch Channel) (time.Time, error) {
	if connectionID == "" || userID == "" {
		return time.Time{}, fmt.Errorf("connection id and user id are required")
	}
	now := r.now().UTC()

	r.mu.Lock()
	if _, exists := r.conns[connectionID]; exists {
		r.mu.Unlock()
		return time.Time{}, ErrAlreadyRegistered
	}
	r.conns[connectionID] = &Connection{
		ID:            connectionID,
		UserID:        userID,
		Channel:       ch,
		ConnectedAt:   now,
		LastHeartbeat: now,
	}
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]struct{})
	}
	r.byUser[userID][connectionID] = struct{}{}
	r.mu.Unlock()

	r.metrics.ConnectionOpened()
	log.Printf("[REGISTRY] Connection %s registered for user %s", connectionID, userID)

	if r.sink != nil {
		if err := r.sink.RecordConnect(ctx, userID, connectionID, now); err != nil {
			log.Printf("[REGISTRY] Failed to record connect for %s: %v", connectionID, err)
		}
	}
	return now, nil
}

// Heartbeat refreshes a connection and returns its age in seconds
func (r *Registry) Heartbeat(ctx context.Context, connectionID string) (float64, error) {
	now := r.now().UTC()

	r.mu.Lock()
	conn, ok := r.conns[connectionID]
	if !ok {
		r.mu.Unlock()
		return 0, ErrNotFound
	}
	conn.LastHeartbeat = now
	duration := now.Sub(conn.ConnectedAt).Seconds()
	r.mu.Unlock()

	if hb, ok := r.sink.(HeartbeatSink); ok {
		if err := hb.RecordHeartbeat(ctx, connectionID); err != nil {
			log.Printf("[REGISTRY] Failed to record heartbeat for %s: %v", connectionID, err)
		}
	}
	return duration, nil
}

// Unregister removes a connection together with every subscription it held
// and returns its lifetime in seconds. A second call returns ErrNotFound.
func (r *Registry) Unregister(ctx context.Context, connectionID string) (float64, error) {
	now := r.now().UTC()

	r.mu.Lock()
	conn, ok := r.conns[connectionID]
	if !ok {
		r.mu.Unlock()
		return 0, ErrNotFound
	}
	delete(r.conns, connectionID)
	if set := r.byUser[conn.UserID]; set != nil {
		delete(set, connectionID)
		if len(set) == 0 {
			delete(r.byUser, conn.UserID)
		}
	}
	for topic := range r.connTopics[connectionID] {
		r.removeSubscriberLocked(topic, connectionID)
	}
	delete(r.connTopics, connectionID)
	r.mu.Unlock()

	duration := now.Sub(conn.ConnectedAt).Seconds()
	if conn.Channel != nil {
		conn.Channel.Close()
	}
	r.metrics.ConnectionClosed(duration)
	log.Printf("[REGISTRY] Connection %s unregistered after %.1fs", connectionID, duration)

	if r.sink != nil {
		if err := r.sink.RecordDisconnect(ctx, connectionID, now, duration); err != nil {
			log.Printf("[REGISTRY] Failed to record disconnect for %s: %v", connectionID, err)
		}
	}
	return duration, nil
}

// CloseAll unregisters every connection and returns how many were closed.
// Used on shutdown so presence history gets a disconnect for each.
func (r *Registry) CloseAll(ctx context.Context) int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	closed := 0
	for _, id := range ids {
		if _, err := r.Unregister(ctx, id); err == nil {
			closed++
		}
	}
	return closed
}

// Send delivers payload to one connection. The send runs outside the lock
// with a bounded timeout; on failure the connection is unregistered and
// ErrChannelClosed is returned. A caller whose ctx is already done gets its
// own error back and the connection is left alone.
func (r *Registry) Send(ctx context.Context, connectionID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send to %s: %w", connectionID, err)
	}

	r.mu.RLock()
	conn, ok := r.conns[connectionID]
	var ch Channel
	if ok {
		ch = conn.Channel
	}
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	// Only the send timeout or a transport error marks the connection dead.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.sendTimeout)
	err := ch.Send(sendCtx, payload)
	cancel()
	if err == nil {
		return nil
	}

	log.Printf("[REGISTRY] Send to %s failed, dropping connection: %v", connectionID, err)
	r.metrics.ConnectionDropped()
	if _, uerr := r.Unregister(context.WithoutCancel(ctx), connectionID); uerr != nil && !errors.Is(uerr, ErrNotFound) {
		log.Printf("[REGISTRY] Failed to unregister %s: %v", connectionID, uerr)
	}
	return fmt.Errorf("send to %s: %w: %w", connectionID, ErrChannelClosed, err)
}

// SendToUser delivers payload to every connection of a user and returns the
// number of successful sends
func (r *Registry) SendToUser(ctx context.Context, userID string, payload []byte) int {
	sent := 0
	for _, id := range r.ListUserConnections(userID) {
		if err := r.Send(ctx, id, payload); err == nil {
			sent++
		}
	}
	return sent
}

// Get returns a snapshot of one connection
func (r *Registry) Get(connectionID string) (ConnectionInfo, bool) {
	now := r.now().UTC()
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connectionID]
	if !ok {
		return ConnectionInfo{}, false
	}
	return infoOf(conn, now), true
}

// ListUserConnections returns the connection IDs of a user, sorted
func (r *Registry) ListUserConnections(userID string) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// UserConnections returns connection details for a user, oldest first
func (r *Registry) UserConnections(userID string) []ConnectionInfo {
	now := r.now().UTC()
	r.mu.RLock()
	infos := make([]ConnectionInfo, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		infos = append(infos, infoOf(r.conns[id], now))
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ConnectionID < infos[j].ConnectionID
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// ActiveUsers returns the IDs of users with at least one connection, sorted
func (r *Registry) ActiveUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Stats summarizes connections and topic subscriptions
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalConnections: len(r.conns),
		UniqueUsers:      len(r.byUser),
	}
	for topic := range r.topics {
		switch topic.Kind {
		case TopicUser:
			stats.UserSubscriptions++
		case TopicEvent:
			stats.EventSubscriptions++
		}
	}
	return stats
}

// Subscriptions returns the topics a connection is subscribed to, sorted
func (r *Registry) Subscriptions(connectionID string) []Topic {
	r.mu.RLock()
	topics := make([]Topic, 0, len(r.connTopics[connectionID]))
	for topic := range r.connTopics[connectionID] {
		topics = append(topics, topic)
	}
	r.mu.RUnlock()

	sort.Slice(topics, func(i, j int) bool { return topics[i].String() < topics[j].String() })
	return topics
}

// Subscribers returns the connection IDs subscribed to topic, sorted
func (r *Registry) Subscribers(topic Topic) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.topics[topic]))
	for id := range r.topics[topic] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// HasTopic reports whether topic has any subscriber
func (r *Registry) HasTopic(topic Topic) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.topics[topic]
	return ok
}

func (r *Registry) subscribe(connectionID string, topic Topic) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connectionID]; !ok {
		return ErrNotFound
	}
	if r.topics[topic] == nil {
		r.topics[topic] = make(map[string]struct{})
	}
	r.topics[topic][connectionID] = struct{}{}
	if r.connTopics[connectionID] == nil {
		r.connTopics[connectionID] = make(map[Topic]struct{})
	}
	r.connTopics[connectionID][topic] = struct{}{}
	return nil
}

func (r *Registry) unsubscribe(connectionID string, topic Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeSubscriberLocked(topic, connectionID)
	if set := r.connTopics[connectionID]; set != nil {
		delete(set, topic)
		if len(set) == 0 {
			delete(r.connTopics, connectionID)
		}
	}
}

// removeSubscriberLocked drops one subscriber and the topic key once empty.
// Caller holds r.mu.
func (r *Registry) removeSubscriberLocked(topic Topic, connectionID string) {
	set := r.topics[topic]
	if set == nil {
		return
	}
	delete(set, connectionID)
	if len(set) == 0 {
		delete(r.topics, topic)
	}
}

func infoOf(conn *Connection, now time.Time) ConnectionInfo {
	return ConnectionInfo{
		ConnectionID:    conn.ID,
		UserID:          conn.UserID,
		ConnectedAt:     conn.ConnectedAt,
		LastHeartbeat:   conn.LastHeartbeat,
		DurationSeconds: now.Sub(conn.ConnectedAt).Seconds(),
	}
}
