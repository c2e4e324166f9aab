package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"relay-chat/internal/transport/wsdto"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type ClientOptions struct {
	SendBuffer      int
	MaxMessageBytes int64
	EventsPerSecond float64
	EventBurst      int
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 * 1024
	}
	if o.EventsPerSecond <= 0 {
		o.EventsPerSecond = 20
	}
	if o.EventBurst <= 0 {
		o.EventBurst = 40
	}
	return o
}

// Client is one WebSocket connection. Outbound events go through a single
// buffered queue drained by writePump, so each connection sees them in the
// order they were queued.
type Client struct {
	id      string
	userID  uuid.UUID
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	opts    ClientOptions
	logger  *Logger
}

func NewClient(conn *websocket.Conn, userID uuid.UUID, opts ClientOptions, logger *Logger) *Client {
	opts = opts.withDefaults()
	return &Client{
		id:      uuid.NewString(),
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(opts.EventsPerSecond), opts.EventBurst),
		opts:    opts,
		logger:  logger,
	}
}

func (c *Client) ID() string        { return c.id }
func (c *Client) UserID() uuid.UUID { return c.userID }

// Send queues evt without blocking. It reports false when the queue is full
// or the client is closed.
func (c *Client) Send(evt wsdto.Event) bool {
	data, err := json.Marshal(evt)
	if err != nil {
		c.logger.Error("marshal_failed", c.userID, c.id, err, zap.String("type", evt.Type))
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops both pumps. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Allow applies the per-connection inbound throttle.
func (c *Client) Allow() bool {
	return c.limiter.Allow()
}

// readPump reads frames until the connection fails or the client is closed
// and hands each one to handle in order.
func (c *Client) readPump(ctx context.Context, handle func(context.Context, wsdto.Inbound)) {
	c.conn.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("unexpected_close", c.userID, c.id, zap.Error(err))
			}
			return
		}
		select {
		case <-c.done:
			return
		default:
		}

		var in wsdto.Inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
			c.Send(wsdto.NewEvent(wsdto.EventError, wsdto.ErrorEvent{
				Code:    "INVALID_REQUEST",
				Message: "malformed frame",
			}))
			continue
		}
		handle(ctx, in)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
