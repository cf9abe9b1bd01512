package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWSHost = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = pongWait * 9 / 10

	reconnectBase = 2 * time.Second
	reconnectMax  = 60 * time.Second
)

// QuoteHandler receives top-of-book updates from the market channel.
type QuoteHandler func(QuoteUpdate)

// WSClient maintains a subscription to the CLOB market WebSocket and invokes
// the handler for every book update. It reconnects with exponential backoff
// and re-subscribes to the current asset set after each reconnect.
type WSClient struct {
	host    string
	handler QuoteHandler
	logger  *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	assets []string
}

// NewWSClient creates a WebSocket quote client. An empty host selects the
// public CLOB market endpoint.
func NewWSClient(host string, handler QuoteHandler, logger *slog.Logger) *WSClient {
	if host == "" {
		host = defaultWSHost
	}
	return &WSClient{
		host:    host,
		handler: handler,
		logger:  logger.With(slog.String("component", "polymarket_ws")),
	}
}

// Subscribe replaces the asset set the client listens to. If a connection is
// live, the new subscription is sent immediately; otherwise it takes effect
// on the next (re)connect.
func (c *WSClient) Subscribe(assetIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.assets = append([]string(nil), assetIDs...)
	if c.conn == nil {
		return nil
	}
	return c.sendSubscribeLocked()
}

// Run connects and processes messages until the context is cancelled. Each
// connection loss triggers a reconnect with exponential backoff.
func (c *WSClient) Run(ctx context.Context) error {
	backoff := reconnectBase
	for {
		if err := c.connect(ctx); err != nil {
			c.logger.Warn("connect failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff))
		} else {
			backoff = reconnectBase
			err := c.readLoop(ctx)
			c.closeConn()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("connection lost",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (c *WSClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.host, nil)
	if err != nil {
		return fmt.Errorf("polymarket: dial %s: %w", c.host, err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	err = c.sendSubscribeLocked()
	c.mu.Unlock()
	if err != nil {
		c.closeConn()
		return err
	}

	c.logger.Info("connected", slog.String("host", c.host))
	return nil
}

func (c *WSClient) sendSubscribeLocked() error {
	if len(c.assets) == 0 {
		return nil
	}
	cmd := WSCommand{Type: "subscribe", Channel: "market", Assets: c.assets}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("polymarket: subscribe: %w", err)
	}
	return nil
}

func (c *WSClient) readLoop(ctx context.Context) error {
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go c.pingLoop(pingCtx)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("polymarket: read: %w", err)
		}
		c.dispatch(data)
	}
}

// dispatch handles one raw frame. The market channel delivers either a single
// event object or an array of them.
func (c *WSClient) dispatch(data []byte) {
	if len(data) == 0 {
		return
	}
	if data[0] == '[' {
		var msgs []BookMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			c.logger.Debug("unparseable frame", slog.String("error", err.Error()))
			return
		}
		for i := range msgs {
			c.handleBook(&msgs[i])
		}
		return
	}

	var msg BookMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("unparseable frame", slog.String("error", err.Error()))
		return
	}
	c.handleBook(&msg)
}

func (c *WSClient) handleBook(msg *BookMessage) {
	if msg.EventType != "book" || msg.AssetID == "" {
		return
	}
	c.handler(msg.ToQuoteUpdate())
}

func (c *WSClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.logger.Debug("ping failed", slog.String("error", err.Error()))
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *WSClient) closeConn() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}
