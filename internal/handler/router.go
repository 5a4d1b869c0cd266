package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/jac-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/jac-chat/backend/internal/handler/persona"
	"github.com/zhouzirui/jac-chat/backend/internal/handler/stream"
	"github.com/zhouzirui/jac-chat/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/jac-chat/backend/internal/middleware"
	personaModel "github.com/zhouzirui/jac-chat/backend/internal/model/persona"
	chatService "github.com/zhouzirui/jac-chat/backend/internal/service/chat"
	"github.com/zhouzirui/jac-chat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	personaHandler := persona.New(personas)
	chatHandler := chat.New(chatSvc)
	streamHandler := stream.New(chatSvc)
	wsHandler := ws.New(chatSvc)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
