package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/domain/registry"
	"github.com/webitel/im-presence-service/internal/service"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Announcer forwards a message created over REST to the node holding the
// receiver's live connections.
type Announcer interface {
	Announce(ctx context.Context, msg *model.Message) error
}

// Handler serves the user directory, the message history and session control.
type Handler struct {
	users     service.UserStore
	messages  service.MessageStore
	enricher  service.Enricher
	revoker   service.Revoker
	lifecycle service.Lifecycle
	hub       registry.Hubber
	announcer Announcer
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
}

func NewHandler(p handlerParams) *Handler {
	return &Handler{
		users:     p.Users,
		messages:  p.Messages,
		enricher:  p.Enricher,
		revoker:   p.Revoker,
		lifecycle: p.Lifecycle,
		hub:       p.Hub,
		announcer: p.Announcer,
		logger:    p.Logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
	}
}

func (h *Handler) caller(r *http.Request) model.UserID {
	identity, _ := IdentityFrom(r.Context())
	return identity.User.ID
}

// withPresence overlays the live registry onto the stored flag, which lags
// behind by the status queue.
// queryLimit reads ?limit=. A zero ceiling leaves the value uncapped. It answers
// 400 itself and reports false when the value is not a positive integer.
func queryLimit(w http.ResponseWriter, r *http.Request, def, ceiling int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if ceiling > 0 {
		n = min(n, ceiling)
	}
	return n, true
}

func (h *Handler) withPresence(users []*model.User) []*model.User {
	return lo.Map(users, func(u *model.User, _ int) *model.User {
		cp := *u
		cp.IsOnline = h.hub.IsOnline(u.ID)
		return &cp
	})
}

// GET /api/users?search=&limit=
// Without a limit every matching user except the caller is returned.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, 0, 0)
	if !ok {
		return
	}

	users, err := h.users.Search(r.Context(), r.URL.Query().Get("search"), h.caller(r), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withPresence(users))
}

// GET /api/users/online
func (h *Handler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	me := h.caller(r)
	ids := lo.Without(h.hub.OnlineUsers(), me)

	users, err := h.users.FindByIDs(r.Context(), ids)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withPresence(users))
}

// GET /api/users/{userId}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.FindByID(r.Context(), model.UserID(chi.URLParam(r, "userId")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withPresence([]*model.User{user})[0])
}

// GET /api/messages/{userId}?limit=
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, defaultHistoryLimit, maxHistoryLimit)
	if !ok {
		return
	}

	msgs, err := h.messages.History(r.Context(), h.caller(r), model.UserID(chi.URLParam(r, "userId")), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// GET /api/messages/unread/count
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.messages.UnreadCount(r.Context(), h.caller(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unreadCount": n})
}

// PUT /api/messages/{messageId}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "messageId"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid message id")
		return
	}

	msg, err := h.messages.MarkRead(r.Context(), id, h.caller(r), h.now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// POST /api/messages
//
// The message is stored here and announced on the bus; the router of the node
// holding the receiver's connections delivers it as new_message.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %w", model.ErrInvalidEvent, err))
		return
	}

	ctx := r.Context()
	if _, err := h.users.FindByID(ctx, req.ReceiverID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	msg := model.NewMessage(h.caller(r), req.ReceiverID, req.Content, req.MessageType, h.now())
	if err := h.messages.Create(ctx, msg); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if populated, err := h.enricher.Populate(ctx, msg); err == nil {
		msg = populated
	}

	if err := h.announcer.Announce(ctx, msg); err != nil {
		// Stored; the receiver still sees it in history.
		h.logger.Warn("[REST] message announce failed", "message_id", msg.ID, "err", err)
	}
	writeJSON(w, http.StatusCreated, msg)
}

// POST /api/auth/logout revokes the caller's token and closes the
// connections opened with it.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	if identity.TokenID == "" {
		writeMessage(w, http.StatusBadRequest, "token cannot be revoked")
		return
	}

	until := identity.ExpiresAt
	if until.IsZero() {
		until = h.now().Add(24 * time.Hour)
	}
	if err := h.revoker.Revoke(r.Context(), identity.TokenID, until); err != nil {
		writeError(w, h.logger, err)
		return
	}

	closed := h.lifecycle.InvalidateToken(identity.TokenID)
	writeJSON(w, http.StatusOK, map[string]int{"closed": closed})
}

// POST /admin/users/{userId}/disconnect
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID := model.UserID(chi.URLParam(r, "userId"))
	closed := h.lifecycle.Invalidate(userID, "disconnected by administrator")
	h.logger.Info("[REST] admin disconnect", "user_id", userID, "closed", closed)
	writeJSON(w, http.StatusOK, map[string]int{"closed": closed})
}

// GET /stats
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Stats())
}

// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
