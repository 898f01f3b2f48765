package rest

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/handler/ws"
	"github.com/webitel/im-presence-service/internal/service"
)

type identityKey struct{}

// IdentityFrom returns the caller attached by RequireAuth.
func IdentityFrom(ctx context.Context) (*model.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*model.Identity)
	return id, ok
}

// RequireAuth runs the same token inspection as the WebSocket handshake.
func RequireAuth(auth service.Auther, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := auth.Inspect(r.Context(), ws.TokenFromRequest(r))
			if err != nil {
				writeError(w, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, identity)))
		})
	}
}

// RequireAdminKey guards operator routes with a shared key.
func RequireAdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeMessage(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request once the response is written.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Debug("[REST] request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"latency", time.Since(start).String(),
					"request_id", chimw.GetReqID(r.Context()),
					"remote_addr", r.RemoteAddr,
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
