package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	chatHandler "github.com/zhouzirui/jac-chat/backend/internal/handler/chat"
	chatService "github.com/zhouzirui/jac-chat/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler drives a chat session over a WebSocket connection.
type Handler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
}

// New creates a WebSocket handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// client serializes writes; gorilla connections allow one concurrent writer.
type client struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (c *client) send(msgType string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *client) sendError(message string) {
	if err := c.send("error", map[string]string{"message": message}); err != nil {
		log.Debug().Err(err).Str("component", "websocket").Msg("send error frame failed")
	}
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	controller, err := h.chatSvc.Controller(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "websocket").Msg("upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.With().Str("component", "websocket").Str("session", sessionID).Logger()
	logger.Info().Msg("connection opened")
	defer logger.Info().Msg("connection closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{conn: conn, sessionID: sessionID}

	go h.forward(ctx, cancel, c, controller)
	go h.pingLoop(ctx, c)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.sendError("invalid message")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case "send":
			// the reply outlives the connection so the log stays consistent
			go h.submit(context.WithoutCancel(ctx), c, controller, msg.Text)
		case "draft":
			controller.SetDraft(msg.Text)
		default:
			c.sendError("unsupported message type")
		}
	}
}

// forward sends the log as "history", then relays appends until ctx ends or
// the session closes. A lagging connection is resubscribed and gets a fresh
// "history" frame.
func (h *Handler) forward(ctx context.Context, cancel context.CancelFunc, c *client, controller *chatService.Controller) {
	defer cancel()
	for {
		if err := h.follow(ctx, c, controller); err != nil {
			return
		}
		if controller.Closed() {
			_ = c.send("end", map[string]string{"reason": "session ended"})
			_ = c.conn.Close()
			return
		}
		log.Debug().Str("component", "websocket").Str("session", c.sessionID).Msg("connection fell behind, resending history")
	}
}

// follow relays one subscription and returns nil once it is closed.
func (h *Handler) follow(ctx context.Context, c *client, controller *chatService.Controller) error {
	updates, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	history := controller.Log()
	var lastID int64
	if last, ok := history.Last(); ok {
		lastID = last.ID
	}
	if err := c.send("history", history.Messages()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-updates:
			if !ok {
				return nil
			}
			if msg.ID <= lastID {
				continue
			}
			lastID = msg.ID
			if err := c.send("message", msg); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) submit(ctx context.Context, c *client, controller *chatService.Controller, text string) {
	outcome, err := controller.Submit(ctx, chatService.InputFrom(text))
	switch {
	case errors.Is(err, chatService.ErrReplyInFlight):
		c.sendError(err.Error())
		return
	case errors.Is(err, chatService.ErrControllerDone):
		c.sendError("session ended")
		return
	case err != nil:
		log.Error().Err(err).Str("component", "websocket").Str("session", c.sessionID).Msg("submit failed")
		c.sendError("failed to send message")
		return
	}
	if err := c.send("outcome", chatHandler.NewOutcomeView(outcome)); err != nil {
		log.Debug().Err(err).Str("component", "websocket").Str("session", c.sessionID).Msg("send outcome failed")
	}
}

func (h *Handler) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
