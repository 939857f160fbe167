// Package ws bridges the Redis signal bus to WebSocket clients so wallets
// and mint pages see settlements, graduations and claims as they land.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wavemint/wavemint/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// defaultChannels are the pub/sub patterns the hub bridges. Every mint and
// wallet topic flows through; clients narrow their own view by subscribing
// to specific topics.
var defaultChannels = []string{
	"mint:*",
	"wallet:*",
}

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // subscribed topics, may include trailing-* patterns
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to manage its topics:
//
//	{"subscribe":["mint:abc"],"unsubscribe":["wallet:*"]}
type subscribeMsg struct {
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
}

// broadcastMsg carries a message along with its source topic so the hub can
// route it only to clients subscribed to that topic.
type broadcastMsg struct {
	topic string
	data  []byte
}

// Hub manages connected WebSocket clients and fans bus messages out to the
// clients subscribed to each topic. Delivery is best-effort; a slow client
// loses messages rather than stalling the hub.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

// Config captures runtime metadata included in the hello envelope sent to
// clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// NewHub creates a Hub that bridges the given SignalBus to WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger,
		mode:       mode,
		startedAt:  startedAt,
	}
}

// Run starts the hub's main event loop. It should be called in a goroutine
// and exits when the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for _, topic := range defaultChannels {
		go h.bridgeTopic(ctx, topic)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.isSubscribed(msg.topic) {
					select {
					case c.send <- msg.data:
					default:
						// Client's send buffer is full; drop the message.
						h.logger.Warn("ws: dropping message for slow client")
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// bridgeTopic subscribes to one bus pattern and forwards received messages
// to the hub's broadcast channel, wrapped in a topic envelope so clients
// know which mint or wallet the event belongs to. Routing uses the concrete
// channel each signal arrived on, not the pattern.
func (h *Hub) bridgeTopic(ctx context.Context, pattern string) {
	msgCh, err := h.bus.Subscribe(ctx, pattern)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to topic",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("ws: bridging topic", slog.String("pattern", pattern))

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: topic subscription closed",
					slog.String("pattern", pattern),
				)
				return
			}
			envelope, err := json.Marshal(map[string]any{
				"topic":   sig.Channel,
				"payload": json.RawMessage(sig.Payload),
			})
			if err != nil {
				continue
			}
			h.broadcast <- broadcastMsg{
				topic: sig.Channel,
				data:  envelope,
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. Clients may pre-subscribe via query parameters:
// GET /ws?mint_id=...&wallet_id=...
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}

	q := r.URL.Query()
	if mintID := q.Get("mint_id"); mintID != "" {
		c.subs[domain.MintTopic(mintID)] = true
	}
	if walletID := q.Get("wallet_id"); walletID != "" {
		c.subs[domain.WalletTopic(walletID)] = true
	}
	// No pre-subscription: receive everything until told otherwise.
	if len(c.subs) == 0 {
		for _, topic := range defaultChannels {
			c.subs[topic] = true
		}
	}

	h.register <- c
	c.sendHello()

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads messages from the WebSocket connection. It handles
// subscription management requests (JSON text frames) from the client.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil &&
			(len(sub.Subscribe) > 0 || len(sub.Unsubscribe) > 0) {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests from the client.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, topic := range msg.Subscribe {
		c.subs[topic] = true
	}
	for _, topic := range msg.Unsubscribe {
		delete(c.subs, topic)
	}
}

// sendHello pushes a small JSON envelope so clients can immediately mark the
// connection as healthy even before any settlement events flow.
func (c *client) sendHello() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	c.mu.RLock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.RUnlock()

	msg, err := json.Marshal(map[string]any{
		"type": "hello",
		"payload": map[string]any{
			"mode":           c.hub.mode,
			"uptime_seconds": uptime,
			"topics":         topics,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// isSubscribed checks whether the client is subscribed to the given topic.
// A client holding a trailing-* pattern like "mint:*" matches every mint.
func (c *client) isSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[topic] {
		return true
	}
	for sub := range c.subs {
		if patternMatch(sub, topic) {
			return true
		}
	}
	return false
}

// patternMatch reports whether name falls under a trailing-* pattern.
func patternMatch(pattern, name string) bool {
	if len(pattern) == 0 || pattern[len(pattern)-1] != '*' {
		return false
	}
	prefix := pattern[:len(pattern)-1]
	return strings.HasPrefix(name, prefix)
}

// writePump pumps messages from the hub to the WebSocket connection. Events
// go out as JSON text frames; periodic pings keep the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
