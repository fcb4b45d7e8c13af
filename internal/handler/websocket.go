package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pet_chat/internal/config"
	"pet_chat/internal/middleware"
	"pet_chat/internal/relay"
	apperrors "pet_chat/pkg/errors"
	"pet_chat/pkg/logger"
)

type WebSocketHandler struct {
	relay    *relay.Relay
	cfg      config.RelayConfig
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewWebSocketHandler builds the chat endpoint. In production the upgrade is
// refused for origins other than the serving host.
func NewWebSocketHandler(r *relay.Relay, cfg config.RelayConfig, production bool, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		relay: r,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(req *http.Request) bool {
				return middleware.OriginAllowed(req, production)
			},
		},
		log: log,
	}
}

// HandleChat upgrades the request and runs the connection until either side
// closes it.
func (h *WebSocketHandler) HandleChat(c *gin.Context) {
	authUser := middleware.UserIDFromContext(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade connection", "error", err, "origin", c.GetHeader("Origin"))
		return
	}

	client := newWSClient(conn, h.cfg)
	session := h.relay.Connect(client, authUser)
	log := h.log.With("connection_id", string(session.ID()))
	log.Info("Client connected", "remote_addr", c.ClientIP(), "user_id", authUser)

	go client.writePump(log)
	client.readPump(session, log)
}

// wsClient adapts a websocket connection to relay.Sink. Outbound frames go
// through a bounded buffer drained by writePump.
type wsClient struct {
	conn *websocket.Conn
	cfg  config.RelayConfig

	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newWSClient(conn *websocket.Conn, cfg config.RelayConfig) *wsClient {
	return &wsClient{
		conn: conn,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBufferSize),
		done: make(chan struct{}),
	}
}

// Send queues payload without blocking. A client whose buffer is full is
// disconnected.
func (c *wsClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return apperrors.ErrConnectionClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.closeLocked()
		return apperrors.ErrSlowConsumer
	}
}

func (c *wsClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *wsClient) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *wsClient) readPump(session *relay.Session, log logger.Logger) {
	defer func() {
		session.Close()
		_ = c.Close()
		log.Info("Client disconnected")
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	ctx, cancel := contextUntil(c.done)
	defer cancel()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Unexpected websocket close", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		session.Handle(ctx, data)
	}
}

func (c *wsClient) writePump(log logger.Logger) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug("Failed to write message", "error", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever was queued before the client was closed.
func (c *wsClient) flush() {
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

// contextUntil is cancelled once done is closed.
func contextUntil(done <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

var _ relay.Sink = (*wsClient)(nil)
