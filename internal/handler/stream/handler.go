package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	chatService "github.com/zhouzirui/jac-chat/backend/internal/service/chat"
	"github.com/zhouzirui/jac-chat/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Handler streams a session's log over Server-Sent Events.
type Handler struct {
	chatSvc   *chatService.Service
	heartbeat time.Duration
}

// New creates a stream handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc, heartbeat: defaultHeartbeat}
}

// RegisterRoutes registers the stream route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/stream", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	controller, err := h.chatSvc.Controller(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if err := h.Stream(r.Context(), w, flusher, controller); err != nil {
		log.Debug().Err(err).Str("component", "sse").Str("session", sessionID).Msg("stream closed")
	}
}

// Stream sends the current log as a "history" event, then one "message"
// event per append until ctx ends or the session is closed. A stream that
// falls behind gets a fresh "history" event instead of a gap.
func (h *Handler) Stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, controller *chatService.Controller) error {
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		if err := h.follow(ctx, w, flusher, controller, ticker.C); err != nil {
			return err
		}
		if controller.Closed() {
			_ = utils.SendSSEEvent(w, flusher, "end", map[string]string{"reason": "session ended"})
			return errors.New("session ended")
		}
		log.Debug().Str("component", "sse").Msg("stream fell behind, resending history")
	}
}

// follow streams one subscription and returns nil once it is closed.
func (h *Handler) follow(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, controller *chatService.Controller, heartbeat <-chan time.Time) error {
	// subscribe before the snapshot so no append falls between them
	updates, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	history := controller.Log()
	var lastID int64
	if last, ok := history.Last(); ok {
		lastID = last.ID
	}
	if err := utils.SendSSEEvent(w, flusher, "history", history.Messages()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-heartbeat:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return err
			}
		case msg, ok := <-updates:
			if !ok {
				return nil
			}
			if msg.ID <= lastID {
				continue
			}
			lastID = msg.ID
			if err := utils.SendSSEEvent(w, flusher, "message", msg); err != nil {
				return err
			}
		}
	}
}
