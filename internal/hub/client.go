package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"volitus/server/internal/config"
	"volitus/server/internal/models"
)

// Client is one live WebSocket connection of a room. It is the removable
// handle held by the Registry: registration and removal are keyed by ID, so a
// client is removed at most once no matter how many paths observe its death.
type Client struct {
	ID     string
	RoomID string
	Role   models.ClientRole
	Conn   *websocket.Conn
	Send   chan []byte

	cfg     config.WebSocketConfig
	limiter *rate.Limiter
	mu      sync.RWMutex // guards Send against close during a send
	closed  atomic.Bool
}

// NewClient wraps conn for roomID. conn may be nil for in-process clients
// that only consume Send.
func NewClient(conn *websocket.Conn, roomID string, role models.ClientRole, cfg config.WebSocketConfig) *Client {
	buf := cfg.SendBuffer
	if buf <= 0 {
		buf = 256
	}

	c := &Client{
		ID:     uuid.NewString(),
		RoomID: roomID,
		Role:   role,
		Conn:   conn,
		Send:   make(chan []byte, buf),
		cfg:    cfg,
	}
	if cfg.ChatRate > 0 {
		burst := cfg.ChatBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.ChatRate), burst)
	}
	return c
}

// Closed reports whether the client has been removed from its room
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// Allow reports whether one more inbound message fits the client's rate
func (c *Client) Allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// TrySend queues data without blocking. It returns false when the client is
// closed or its buffer is full.
func (c *Client) TrySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed.Load() {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the Send channel once. It reports whether this call closed it.
func (c *Client) closeSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return false
	}
	c.closed.Store(true)
	close(c.Send)
	return true
}

// ReadPump reads frames until the connection fails and hands each one to
// handler. Frames over the rate limit go to limited instead. The caller
// unregisters the client when ReadPump returns.
func (c *Client) ReadPump(log zerolog.Logger, handler func(*Client, []byte), limited func(*Client)) {
	defer c.Conn.Close()

	if c.cfg.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client_id", c.ID).Msg("unexpected close")
			}
			return
		}

		if !c.Allow() {
			if limited != nil {
				limited(c)
			}
			continue
		}
		handler(c, message)
	}
}

// WritePump drains Send to the connection and keeps it alive with pings.
// It returns when Send is closed or a write fails.
func (c *Client) WritePump(log zerolog.Logger) {
	interval := c.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				// Registry closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("client_id", c.ID).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("client_id", c.ID).Msg("ping failed")
				return
			}
		}
	}
}
