// Package websocket serves the client WebSocket endpoint on top of the
// realtime registry and router.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jgirmay/circle_realtime/pkg/config"
	"github.com/jgirmay/circle_realtime/pkg/services/realtime"
)

// Options tunes the WebSocket transport
type Options struct {
	SendBuffer      int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
	AllowedOrigins  []string
}

// OptionsFromConfig maps service configuration onto transport options
func OptionsFromConfig(cfg config.WebSocketConfig) Options {
	return Options{
		SendBuffer:      cfg.SendBuffer,
		PingInterval:    cfg.PingInterval,
		PongWait:        cfg.PongWait,
		MaxMessageBytes: cfg.MaxMessageBytes,
		AllowedOrigins:  cfg.AllowedOrigins,
	}
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 512 * 1024
	}
	return o
}

// Gateway upgrades HTTP requests and runs one read loop per connection
type Gateway struct {
	registry *realtime.Registry
	router   *realtime.Router
	upgrader websocket.Upgrader
	opts     Options
	now      func() time.Time
}

// NewGateway creates a gateway
func NewGateway(registry *realtime.Registry, router *realtime.Router, opts Options) *Gateway {
	opts = opts.withDefaults()
	g := &Gateway{
		registry: registry,
		router:   router,
		opts:     opts,
		now:      time.Now,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP handles GET /ws?user_id=<id>
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   "bad_request",
			"message": "user_id query parameter is required",
		})
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		log.Printf("[WS] Upgrade failed for user %s: %v", userID, err)
		return
	}

	// the connection outlives the request context once hijacked
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	connectionID := uuid.New().String()
	c := newClient(connectionID, conn, g.opts)

	connectedAt, err := g.registry.Register(ctx, connectionID, userID, c)
	if err != nil {
		log.Printf("[WS] Register %s failed: %v", connectionID, err)
		conn.Close()
		return
	}
	go c.writePump()

	g.serve(ctx, c, userID, connectedAt)
}

// serve runs the read loop. Returning always unregisters the connection.
func (g *Gateway) serve(ctx context.Context, c *client, userID string, connectedAt time.Time) {
	defer func() {
		if duration, err := g.registry.Unregister(ctx, c.id); err == nil {
			log.Printf("[WS] User %s disconnected after %.2f seconds (connection: %s)", userID, duration, c.id)
		}
		c.Close()
	}()

	g.reply(ctx, c.id, connectedFrame(c.id, userID, connectedAt))

	c.conn.SetReadLimit(g.opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Read error on %s: %v", c.id, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))

		msg, err := Decode(raw)
		if err != nil {
			g.reply(ctx, c.id, errorFrame(err.Error()))
			continue
		}
		g.handle(ctx, c.id, userID, msg)
	}
}

func (g *Gateway) handle(ctx context.Context, connectionID, userID string, msg ClientMessage) {
	switch m := msg.(type) {
	case Subscribe:
		if err := g.router.Subscribe(connectionID, m.Topic); err != nil {
			g.reply(ctx, connectionID, errorFrame(err.Error()))
			return
		}
		g.reply(ctx, connectionID, subscriptionFrame(TypeSubscribed, m.Topic))

	case Unsubscribe:
		if err := g.router.Unsubscribe(connectionID, m.Topic); err != nil {
			g.reply(ctx, connectionID, errorFrame(err.Error()))
			return
		}
		g.reply(ctx, connectionID, subscriptionFrame(TypeUnsubscribed, m.Topic))

	case Heartbeat:
		duration, err := g.registry.Heartbeat(ctx, connectionID)
		if err != nil {
			g.reply(ctx, connectionID, errorFrame(err.Error()))
			return
		}
		g.reply(ctx, connectionID, heartbeatFrame(g.now(), duration))

	case Ping:
		g.reply(ctx, connectionID, pongFrame(g.now()))

	case Message:
		event := realtime.NewEvent(realtime.EventMessage, relayedMessage{
			FromUserID:   userID,
			ConnectionID: connectionID,
			Message:      m.Text,
			Timestamp:    realtime.Timestamp(g.now()),
		})
		if _, err := g.router.PublishJSON(ctx, realtime.UserTopic(userID), event); err != nil {
			g.reply(ctx, connectionID, errorFrame(err.Error()))
		}
	}
}

// reply sends one frame to the connection. A failed send has already
// dropped the connection, so the read loop ends on its next read.
func (g *Gateway) reply(ctx context.Context, connectionID string, event realtime.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[WS] Failed to encode %s frame: %v", event.Type, err)
		return
	}
	if err := g.registry.Send(ctx, connectionID, payload); err != nil && !errors.Is(err, realtime.ErrNotFound) {
		log.Printf("[WS] Reply to %s failed: %v", connectionID, err)
	}
}
