// Package ws is the websocket transport for the event protocol. A Client
// wraps one gorilla/websocket connection with a read pump that feeds frames
// to the events.Dispatcher in arrival order and a write pump that drains a
// bounded outbound queue. Client implements realtime.Conn.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-social-backend/internal/config"
	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/events"
	"github.com/tbourn/go-social-backend/internal/realtime"
)

// ErrClosed is returned when writing to a client that has shut down.
var ErrClosed = errors.New("connection closed")

// Client is one live websocket connection of an authenticated user.
type Client struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn
	cfg      config.WSConfig
	log      zerolog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

var _ realtime.Conn = (*Client)(nil)

func newClient(conn *websocket.Conn, identity domain.Identity, cfg config.WSConfig, base zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		cfg:      cfg,
		log:      base.With().Str("conn_id", id).Uint("user_id", identity.ID).Logger(),
		send:     make(chan []byte, cfg.SendBuffer),
		done:     make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user's id.
func (c *Client) UserID() uint { return c.identity.ID }

// Emit queues a push frame. It never blocks.
func (c *Client) Emit(event string, payload any) error {
	return c.enqueue(events.NewPush(event, payload))
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Client) reply(ack events.Ack) error {
	return c.enqueue(ack)
}

func (c *Client) enqueue(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return realtime.ErrSendBufferFull
	}
}

// readPump handles inbound frames one at a time until the peer goes away
// or the client is closed. Each frame runs under a context that outlives
// the connection so a disconnect does not abort a command mid-write.
func (c *Client) readPump(ctx context.Context, d *events.Dispatcher, limiter *rate.Limiter) {
	defer c.Close()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	ctx = c.log.WithContext(context.WithoutCancel(ctx))
	caller := events.Caller{Identity: c.identity, Conn: c, Limiter: limiter}

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		d.Handle(ctx, caller, data, c.reply)
	}
}

// writePump drains the outbound queue and keeps the connection alive with
// pings. It owns all writes to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}

// flush writes whatever is already queued.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
