// Package ws bridges the Redis signal bus to WebSocket clients: live quote
// events from the feed channel and pipeline records from the durable event
// stream.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = pongWait * 9 / 10

	maxMessageSize = 4096
	sendBufferSize = 256

	// streamPollInterval bounds how often the hub polls the event stream
	// when it is idle.
	streamPollInterval = time.Second
)

// Channel names clients can subscribe to.
const (
	ChannelQuotes = "quotes"
	ChannelEvents = "events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering happens in the CORS middleware.
		return true
	},
}

// envelope wraps every frame sent to clients with its source channel.
type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// subscribeMsg is the JSON message a client sends to change subscriptions.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// client is one WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

// Hub fans signal-bus traffic out to connected WebSocket clients. Quote
// events arrive over pub/sub; pipeline events are tailed from the durable
// stream so clients see records even when they connect between cycles.
type Hub struct {
	clients      map[*client]bool
	broadcast    chan envelope
	register     chan *client
	unregister   chan *client
	bus          domain.SignalBus
	quoteChannel string
	eventStream  string
	mu           sync.RWMutex
	logger       *slog.Logger
}

// NewHub creates a Hub bridging the given bus channels.
func NewHub(bus domain.SignalBus, quoteChannel, eventStream string, logger *slog.Logger) *Hub {
	return &Hub{
		clients:      make(map[*client]bool),
		broadcast:    make(chan envelope, 256),
		register:     make(chan *client),
		unregister:   make(chan *client),
		bus:          bus,
		quoteChannel: quoteChannel,
		eventStream:  eventStream,
		logger:       logger.With(slog.String("component", "ws_hub")),
	}
}

// Run processes registrations and broadcasts until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	go h.relayQuotes(ctx)
	go h.tailEvents(ctx)

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
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", n))

		case env := <-h.broadcast:
			frame, err := json.Marshal(env)
			if err != nil {
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(env.Channel) {
					continue
				}
				select {
				case c.send <- frame:
				default:
					// Slow client; drop the frame rather than block.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relayQuotes forwards pub/sub quote events to the broadcast loop.
func (h *Hub) relayQuotes(ctx context.Context) {
	ch, err := h.bus.Subscribe(ctx, h.quoteChannel)
	if err != nil {
		h.logger.Error("quote subscribe failed", slog.String("error", err.Error()))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast <- envelope{Channel: ChannelQuotes, Data: data}
		}
	}
}

// tailEvents polls the durable pipeline stream from its tail and forwards
// new records.
func (h *Hub) tailEvents(ctx context.Context) {
	lastID := "$"
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msgs, err := h.bus.TailEvents(ctx, h.eventStream, lastID, 100)
			if err != nil {
				h.logger.Debug("event stream read failed", slog.String("error", err.Error()))
				continue
			}
			for _, msg := range msgs {
				lastID = msg.ID
				h.broadcast <- envelope{Channel: ChannelEvents, Data: msg.Payload}
			}
		}
	}
}

// HandleWS upgrades the request and registers the client. New clients start
// subscribed to every channel.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{ChannelQuotes: true, ChannelEvents: true},
	}

	h.register <- c
	go c.writePump()
	go c.readPump()
}

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
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

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
