// Package live owns the persistent websocket connection to the chat server
// and dispatches inbound push events.
//
// At most one connection is open at a time: Connect supersedes and closes any
// prior connection before dialing, and every read loop is tagged with its
// connection's identity so events from a superseded loop are provably
// discardable. A malformed frame is logged and skipped; it never terminates
// the dispatch loop.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/debianrose/dumbchat/internal/gateway"
)

// Status is a user-visible connection state change.
type Status int

const (
	// StatusConnected fires once per successful connect.
	StatusConnected Status = iota
	// StatusDisconnected fires when the connection closes, whether
	// initiated locally or by the remote peer.
	StatusDisconnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "connected"
	}
	return "disconnected"
}

// PushMessage is the payload of a "message" frame: a message plus the channel
// it belongs to.
type PushMessage struct {
	Channel string `json:"channel"`
	gateway.Message
}

type frame struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

// MessageHandler receives every inbound chat message push.
type MessageHandler func(msg PushMessage)

// StatusHandler receives connection status transitions.
type StatusHandler func(status Status)

type conn struct {
	id     string
	ws     *websocket.Conn
	cancel context.CancelFunc
}

// Client manages the live connection lifecycle. Safe for concurrent use.
type Client struct {
	logger    *slog.Logger
	wsURL     string
	onMessage MessageHandler
	onStatus  StatusHandler

	// connectMu serializes the supersede+dial+install sequence so that
	// overlapping Connect/Disconnect calls cannot interleave between the
	// teardown of one connection and the install of the next.
	connectMu sync.Mutex

	mu      sync.Mutex
	current *conn
}

// NewClient builds a live client for wsURL. Handlers may be nil.
func NewClient(log *slog.Logger, wsURL string, onMessage MessageHandler, onStatus StatusHandler) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		logger:    log.With(slog.String("component", "live")),
		wsURL:     wsURL,
		onMessage: onMessage,
		onStatus:  onStatus,
	}
}

// Connect opens a fresh connection authenticated by token, superseding and
// closing any prior one first. Emits a connected status on success. A
// concurrent Connect or Disconnect blocks until the whole sequence is done,
// so at most one connection is ever installed.
func (c *Client) Connect(ctx context.Context, token string) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.drop()

	dialURL := c.wsURL + "?token=" + url.QueryEscape(token)
	ws, _, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		return gateway.NewError(gateway.KindNetwork, "live connect", err)
	}
	// Push frames can be large when history-like payloads arrive.
	ws.SetReadLimit(1 << 20)

	loopCtx, cancel := context.WithCancel(context.Background())
	instance := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		cancel: cancel,
	}

	c.mu.Lock()
	c.current = instance
	c.mu.Unlock()

	c.logger.Info("connected", slog.String("conn_id", instance.id))
	c.emitStatus(StatusConnected)

	go c.readLoop(loopCtx, instance)
	return nil
}

// Disconnect closes the active connection, if any. Idempotent: calling it
// with none open is a no-op. Emits a disconnected status when a connection
// was actually closed. Waits for any in-flight Connect, so a connection
// being established is torn down too rather than surviving the call.
func (c *Client) Disconnect() {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	c.drop()
}

// drop closes and clears the installed connection. Callers hold connectMu.
func (c *Client) drop() {
	c.mu.Lock()
	instance := c.current
	c.current = nil
	c.mu.Unlock()

	if instance == nil {
		return
	}
	instance.cancel()
	_ = instance.ws.Close(websocket.StatusNormalClosure, "client disconnect")
	c.logger.Info("disconnected", slog.String("conn_id", instance.id))
	c.emitStatus(StatusDisconnected)
}

// Connected reports whether a live connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

func (c *Client) isCurrent(instance *conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == instance
}

// dropIfCurrent clears the current connection if it is still instance.
// Reports whether instance was the current connection.
func (c *Client) dropIfCurrent(instance *conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != instance {
		return false
	}
	c.current = nil
	return true
}

func (c *Client) emitStatus(status Status) {
	if c.onStatus != nil {
		c.onStatus(status)
	}
}

func (c *Client) readLoop(ctx context.Context, instance *conn) {
	log := c.logger.With(slog.String("conn_id", instance.id))
	for {
		_, data, err := instance.ws.Read(ctx)
		if err != nil {
			// A superseded or locally-closed connection exits silently;
			// Disconnect/Connect already emitted the status change.
			if c.dropIfCurrent(instance) {
				log.Warn("connection lost", slog.Any("error", err))
				c.emitStatus(StatusDisconnected)
			}
			return
		}
		c.dispatch(log, instance, data)
	}
}

func (c *Client) dispatch(log *slog.Logger, instance *conn, data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Warn("malformed frame skipped", slog.Any("error", err))
		return
	}

	switch f.Type {
	case "message":
		var push PushMessage
		if err := json.Unmarshal(f.Msg, &push); err != nil {
			log.Warn("malformed message payload skipped", slog.Any("error", err))
			return
		}
		// Events read just before supersession must not be delivered after it.
		if !c.isCurrent(instance) {
			log.Debug("event from superseded connection dropped", slog.String("id", push.ID))
			return
		}
		if c.onMessage != nil {
			c.onMessage(push)
		}
	default:
		// Call/presence and other real-time signals are handled elsewhere;
		// an unknown type must never be fatal.
		log.Debug("unhandled event type", slog.String("type", f.Type))
	}
}
