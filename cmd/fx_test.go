package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/webitel/im-presence-service/config"
	httpsrv "github.com/webitel/im-presence-service/infra/server/http"
	"github.com/webitel/im-presence-service/internal/adapter/storage"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/service"
)

const testSecret = "integration-secret-0123456789"

func loadTestConfig(t *testing.T, dsn string) *config.Config {
	t.Helper()
	t.Setenv("IM_AUTH_SECRET", testSecret)
	t.Setenv("IM_HTTP_ADDR", "127.0.0.1:0")
	t.Setenv("IM_LOG_LEVEL", "error")
	t.Setenv("IM_DATABASE_DSN", dsn)

	cfg, err := config.LoadConfig(nil)
	require.NoError(t, err)
	return cfg
}

func TestOptions_Validate(t *testing.T) {
	cfg := loadTestConfig(t, "file:cmd_validate?mode=memory&cache=shared")
	require.NoError(t, fx.ValidateApp(Options(cfg)))
}

func token(t *testing.T, id model.UserID) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &service.Claims{
		UserID: string(id),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-" + string(id),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

type frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil skips unrelated frames; presence broadcasts race the handshake.
func readUntil(t *testing.T, ws *websocket.Conn, event string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var f frame
		require.NoError(t, ws.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event && (match == nil || match(f.Payload)) {
			return f.Payload
		}
	}
}

func containing(s string) func(json.RawMessage) bool {
	return func(p json.RawMessage) bool { return strings.Contains(string(p), s) }
}

func TestApp_EndToEnd(t *testing.T) {
	req := require.New(t)
	cfg := loadTestConfig(t, "file:cmd_e2e?mode=memory&cache=shared")

	var (
		srv   *httpsrv.Server
		users *storage.UserRepository
	)
	app := fxtest.New(t, Options(cfg), fx.Populate(&srv, &users))
	app.RequireStart()
	defer app.RequireStop()

	ctx := context.Background()
	req.NoError(users.Create(ctx, &model.User{ID: "u1", Name: "Alice", Email: "alice@example.com"}))
	req.NoError(users.Create(ctx, &model.User{ID: "u2", Name: "Bob", Email: "bob@example.com"}))

	dial := func(id model.UserID) *websocket.Conn {
		ws, resp, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws?token="+token(t, id), nil)
		req.NoError(err)
		_ = resp.Body.Close()
		readUntil(t, ws, "connected", nil)
		return ws
	}

	// Given: both users connected; Alice sees Bob come online
	alice := dial("u1")
	defer alice.Close()
	bob := dial("u2")
	readUntil(t, alice, "user_online", containing(`"userId":"u2"`))

	// When: Alice sends over the socket
	req.NoError(alice.WriteJSON(map[string]any{
		"event":   "send_message",
		"payload": map[string]string{"receiverId": "u2", "content": "hi"},
	}))

	// Then: Bob gets it enriched and Alice gets the ack
	payload := readUntil(t, bob, "new_message", containing(`"content":"hi"`))
	req.Contains(string(payload), `"name":"Alice"`)
	readUntil(t, alice, "message_sent", containing(`"content":"hi"`))

	// When: Bob answers over REST, the bus delivers it live
	body, err := json.Marshal(map[string]string{"receiverId": "u1", "content": "yo"})
	req.NoError(err)
	r, err := http.NewRequest(http.MethodPost, "http://"+srv.Addr()+"/api/messages", bytes.NewReader(body))
	req.NoError(err)
	r.Header.Set("Authorization", "Bearer "+token(t, "u2"))
	resp, err := http.DefaultClient.Do(r)
	req.NoError(err)
	_ = resp.Body.Close()
	req.Equal(http.StatusCreated, resp.StatusCode)

	readUntil(t, alice, "new_message", containing(`"content":"yo"`))

	// When: Bob leaves, Alice is told
	req.NoError(bob.Close())
	readUntil(t, alice, "user_offline", containing(`"userId":"u2"`))
}
