package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/driftsync/internal/hub"
	"github.com/DoyleJ11/driftsync/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Options struct {
	Logger *zap.Logger
}

func SetupRoutes(h *hub.Hub, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Post("/rooms", CreateRoom(h, opts.Logger))
	r.Get("/rooms", ListRooms(h))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, opts.Logger))
	return r
}
