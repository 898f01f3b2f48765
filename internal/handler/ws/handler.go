package ws

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/domain/registry"
	wsmarshaller "github.com/webitel/im-presence-service/internal/handler/marshaller/ws"
	"github.com/webitel/im-presence-service/internal/service"
)

const (
	// CloseAuthentication is sent when the handshake token is rejected.
	CloseAuthentication = 4401
	// CloseUnavailable is sent when the identity could not be checked at all.
	CloseUnavailable = 4503
)

// Handler upgrades HTTP requests and runs one dispatch loop per connection.
type Handler struct {
	lifecycle service.Lifecycle
	router    service.Router
	logger    *slog.Logger
	cfg       config.WSConfig
	upgrader  websocket.Upgrader
}

func NewHandler(cfg *config.Config, lifecycle service.Lifecycle, router service.Router, logger *slog.Logger) *Handler {
	origins := cfg.HTTP.AllowedOrigins
	return &Handler{
		lifecycle: lifecycle,
		router:    router,
		logger:    logger,
		cfg:       cfg.WS,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients do not send an Origin.
				if origin == "" || len(origins) == 0 || lo.Contains(origins, "*") {
					return true
				}
				return lo.Contains(origins, origin)
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		h.logger.Debug("WS_UPGRADE_FAILED", "remote_addr", r.RemoteAddr, "err", err)
		return
	}
	defer ws.Close()

	// 1. [AUTH_GATE] The socket is open, but nothing is registered yet
	conn, err := h.lifecycle.Connect(r.Context(), TokenFromRequest(r), metadataFromRequest(r))
	if err != nil {
		code, reason := CloseAuthentication, "Authentication error"
		if errors.Is(err, model.ErrStorage) {
			code, reason = CloseUnavailable, "Service unavailable"
		}
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(h.cfg.WriteWait))
		return
	}
	defer h.lifecycle.Disconnect(conn)

	// 2. [READ_PUMP] Ends when the peer goes away or the socket is closed below
	go h.readPump(r.Context(), ws, conn)

	// 3. [WRITE_PUMP] Owns every data frame written to the socket
	h.writePump(ws, conn)
}

func (h *Handler) readPump(ctx context.Context, ws *websocket.Conn, conn registry.Connector) {
	defer conn.Close()

	ws.SetReadLimit(h.cfg.MaxMessageBytes)
	extend := func() error { return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait)) }
	_ = extend()
	ws.SetPongHandler(func(string) error { return extend() })

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.logger.Debug("WS_READ_FAILED", "user_id", conn.GetUserID(), "conn_id", conn.GetID(), "err", err)
			}
			return
		}
		_ = extend()

		if kind != websocket.TextMessage {
			continue
		}
		h.dispatch(ctx, conn, data)
	}
}

// dispatch reports a malformed send_message back to its sender and drops any
// other frame it cannot understand.
func (h *Handler) dispatch(ctx context.Context, conn registry.Connector, data []byte) {
	in, err := wsmarshaller.UnmarshalInbound(data)
	if err != nil {
		h.logger.Debug("WS_INBOUND_REJECTED", "user_id", conn.GetUserID(), "conn_id", conn.GetID(), "err", err)
		if in != nil && in.Kind == wsmarshaller.InboundSendMessage {
			conn.Send(event.NewMessageErrorEvent(conn.GetUserID(), service.ReasonInvalidMessage), h.cfg.WriteWait)
		}
		return
	}

	switch in.Kind {
	case wsmarshaller.InboundSendMessage:
		err = h.router.HandleSend(ctx, conn, *in.Message)
	case wsmarshaller.InboundTypingStart:
		err = h.router.HandleTypingStart(ctx, conn, *in.Typing)
	case wsmarshaller.InboundTypingStop:
		err = h.router.HandleTypingStop(ctx, conn, *in.Typing)
	}
	if err != nil {
		h.logger.Debug("WS_EVENT_FAILED", "user_id", conn.GetUserID(), "event", in.Kind, "err", err)
	}
}

func (h *Handler) writePump(ws *websocket.Conn, conn registry.Connector) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			h.drain(ws, conn)
			return

		case ev := <-conn.Recv():
			if err := h.write(ws, ev); err != nil {
				h.logger.Debug("WS_WRITE_FAILED", "user_id", conn.GetUserID(), "conn_id", conn.GetID(), "err", err)
				return
			}
			conn.Transition(model.StateRegistered, model.StateActive)

		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteWait)); err != nil {
				return
			}
		}
	}
}

// drain flushes what was queued before the connection ended, including the
// disconnected notice of a forced close, then says goodbye.
func (h *Handler) drain(ws *websocket.Conn, conn registry.Connector) {
	for drained := false; !drained; {
		select {
		case ev := <-conn.Recv():
			if err := h.write(ws, ev); err != nil {
				return
			}
		default:
			drained = true
		}
	}

	var notice event.Eventer
	switch cause := conn.Cause(); {
	case errors.Is(cause, context.DeadlineExceeded):
		notice = event.NewDisconnectedEvent(conn.GetUserID(), model.DisconnectTokenExpired, "token expired")
	case errors.Is(cause, model.ErrSlowConsumer):
		notice = event.NewDisconnectedEvent(conn.GetUserID(), model.DisconnectSlowConsumer, "connection too slow")
	}
	if notice != nil {
		if err := h.write(ws, notice); err != nil {
			return
		}
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(h.cfg.WriteWait))
}

func (h *Handler) write(ws *websocket.Conn, ev event.Eventer) error {
	data, err := wsmarshaller.MarshalEvent(ev)
	if err != nil {
		// One bad event must not cost the connection.
		h.logger.Error("WS_MARSHAL_FAILED", "event", ev.GetKind(), "err", err)
		return nil
	}
	_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the "token" query parameter browsers have to use.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

func metadataFromRequest(r *http.Request) registry.ConnectMetadata {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	q := r.URL.Query()
	return registry.ConnectMetadata{
		Platform:  q.Get("platform"),
		Version:   q.Get("version"),
		RemoteIP:  ip,
		UserAgent: r.UserAgent(),
	}
}
