package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/webitel/im-presence-service/infra/metrics"
	"github.com/webitel/im-presence-service/internal/service"
)

// NewRouter mounts every public route of the service.
func NewRouter(h *Handler, auth service.Auther, wsHandler http.Handler, m *metrics.Metrics, adminKey string, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimw.Recoverer)

	// Ops
	r.Get("/healthz", h.Health)
	r.Get("/stats", h.Stats)
	r.Handle("/metrics", m.Handler())

	// Realtime, authenticated during the handshake
	r.Handle("/ws", wsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireAuth(auth, logger))

		r.Get("/users", h.SearchUsers)
		r.Get("/users/online", h.OnlineUsers)
		r.Get("/users/{userId}", h.GetUser)

		r.Post("/messages", h.CreateMessage)
		r.Get("/messages/unread/count", h.UnreadCount)
		r.Get("/messages/{userId}", h.History)
		r.Put("/messages/{messageId}/read", h.MarkRead)

		r.Post("/auth/logout", h.Logout)
	})

	if adminKey != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdminKey(adminKey))
			r.Post("/users/{userId}/disconnect", h.Disconnect)
		})
	}

	return r
}
