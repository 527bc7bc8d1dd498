package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	middlewarePkg "github.com/xlzhou/vibechat/internal/middleware"
	"github.com/xlzhou/vibechat/internal/server/hub"
	"github.com/xlzhou/vibechat/internal/server/store"
)

// NewRouter wires HTTP routes to the document store and snapshot hub.
func NewRouter(st *store.Store, h *hub.Hub, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	api := New(st, h, jwtSecret)
	r.Route("/api", func(r chi.Router) {
		api.RegisterRoutes(r)
	})

	return r
}
