package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/jac-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/jac-chat/backend/internal/service/chat"
	"github.com/zhouzirui/jac-chat/backend/pkg/utils"
)

// Handler exposes chat sessions over HTTP.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates a chat handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleEndSession)
	r.Get("/sessions/{sessionID}/messages", h.handleListMessages)
	r.Post("/sessions/{sessionID}/messages", h.handleSubmit)
}

type sessionResponse struct {
	Session  chat.Session   `json:"session"`
	Messages []chat.Message `json:"messages"`
}

// OutcomeView is the client-facing form of a submit outcome.
type OutcomeView struct {
	Kind  chatService.OutcomeKind `json:"kind"`
	Cause string                  `json:"cause,omitempty"`
	User  *chat.Message           `json:"user,omitempty"`
	Reply *chat.Message           `json:"reply,omitempty"`
}

// NewOutcomeView projects out for clients. The cause is a label, never the raw error.
func NewOutcomeView(out chatService.Outcome) OutcomeView {
	return OutcomeView{
		Kind:  out.Kind,
		Cause: out.CauseLabel(),
		User:  out.User,
		Reply: out.Reply,
	}
}

type submitResponse struct {
	Outcome  OutcomeView    `json:"outcome"`
	Messages []chat.Message `json:"messages"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		log.Error().Err(err).Str("component", "http").Msg("create session failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	messages, err := h.chatSvc.LoadTranscript(r.Context(), session.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sessionResponse{Session: session, Messages: messages})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.EndSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListMessages returns the log, or only its newest ?limit= messages.
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			utils.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	controller, err := h.chatSvc.Controller(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, controller.Log().Window(limit))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	// the log outlives the request, so a client hanging up must not cut the reply short
	ctx := context.WithoutCancel(r.Context())

	out, err := h.chatSvc.Submit(ctx, sessionID, chatService.InputFrom(payload.Text))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if out.Failed() {
		log.Warn().Str("component", "http").Str("session", sessionID).Str("cause", out.CauseLabel()).Msg("reply degraded")
	}

	messages, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, submitResponse{Outcome: NewOutcomeView(out), Messages: messages})
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrReplyInFlight):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chatService.ErrControllerDone):
		utils.RespondError(w, http.StatusGone, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
