package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/metrics"
	"github.com/webitel/im-presence-service/internal/adapter/revocation"
	"github.com/webitel/im-presence-service/internal/adapter/storage"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/domain/registry"
	"github.com/webitel/im-presence-service/internal/service"
)

const testAdminKey = "operator-secret"

// tokenAuth accepts "tok-<userId>" and resolves the user from the store.
type tokenAuth struct {
	users service.UserStore
}

func (a tokenAuth) Inspect(ctx context.Context, token string) (*model.Identity, error) {
	if token == "outage" {
		return nil, fmt.Errorf("%w: %w", model.ErrAuthentication, model.ErrStorage)
	}
	id, ok := strings.CutPrefix(token, "tok-")
	if !ok {
		return nil, fmt.Errorf("%w: bad token", model.ErrAuthentication)
	}
	user, err := a.users.FindByID(ctx, model.UserID(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrAuthentication, err)
	}
	return &model.Identity{User: user, TokenID: "jti-" + id, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type recordingLifecycle struct {
	mu          sync.Mutex
	invalidated []model.UserID
	tokens      []string
}

func (l *recordingLifecycle) Connect(context.Context, string, registry.ConnectMetadata) (registry.Connector, error) {
	return nil, model.ErrAuthentication
}

func (l *recordingLifecycle) Disconnect(registry.Connector) {}

func (l *recordingLifecycle) Invalidate(userID model.UserID, _ string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidated = append(l.invalidated, userID)
	return 2
}

func (l *recordingLifecycle) InvalidateToken(tokenID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = append(l.tokens, tokenID)
	return 1
}

type recordingAnnouncer struct {
	mu   sync.Mutex
	msgs []*model.Message
}

func (a *recordingAnnouncer) Announce(_ context.Context, msg *model.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
	return nil
}

type fixture struct {
	srv       *httptest.Server
	hub       *registry.Hub
	revoker   *revocation.MemoryRevoker
	lifecycle *recordingLifecycle
	announcer *recordingAnnouncer
}

func newFixture(t *testing.T, adminKey string) *fixture {
	t.Helper()
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver:          "sqlite",
			DSN:             fmt.Sprintf("file:rest_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
			BreakerFailures: 5,
			BreakerTimeout:  time.Minute,
		},
		Cache: config.CacheConfig{PeerSize: 64, PeerTTL: time.Minute},
	}
	logger := slog.New(slog.DiscardHandler)

	db, err := storage.Open(cfg.Database, logger)
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	t.Cleanup(func() { _ = storage.Close(db) })

	users := storage.NewUserRepository(db, cfg, logger)
	for _, u := range []*model.User{
		{ID: "u1", Name: "Alice", Email: "alice@example.com"},
		{ID: "u2", Name: "Bob", Email: "bob@example.com"},
		{ID: "u3", Name: "Bobby", Email: "bobby@example.com"},
	} {
		require.NoError(t, users.Create(context.Background(), u))
	}

	f := &fixture{
		hub:       registry.NewHub(registry.WithShards(4)),
		revoker:   revocation.NewMemoryRevoker(time.Hour),
		lifecycle: &recordingLifecycle{},
		announcer: &recordingAnnouncer{},
	}
	t.Cleanup(f.hub.Shutdown)

	h := NewHandler(handlerParams{
		Users:     users,
		Messages:  storage.NewMessageRepository(db, cfg, logger),
		Enricher:  service.NewPeerEnricherService(cfg, users),
		Revoker:   f.revoker,
		Lifecycle: f.lifecycle,
		Hub:       f.hub,
		Announcer: f.announcer,
		Logger:    logger,
	})
	router := NewRouter(h, tokenAuth{users: users}, http.NotFoundHandler(), metrics.New(), adminKey, logger)

	f.srv = httptest.NewServer(router)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) online(t *testing.T, id model.UserID) {
	t.Helper()
	conn := registry.NewConnector(context.Background(), model.Identity{User: &model.User{ID: id}}, registry.ConnectMetadata{}, 4)
	f.hub.Register(conn)
	t.Cleanup(conn.Close)
}

func (f *fixture) do(t *testing.T, method, path, token string, body any, header ...string) (int, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}

	r, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}

	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.Bytes()
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestREST_RequiresAuthentication(t *testing.T) {
	f := newFixture(t, "")

	status, body := f.do(t, http.MethodGet, "/api/users", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.JSONEq(t, `{"error":"Authentication error"}`, string(body))

	status, _ = f.do(t, http.MethodGet, "/api/users", "tok-ghost", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.do(t, http.MethodGet, "/api/users", "outage", nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestREST_Users(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "")
	f.online(t, "u2")

	// Search excludes the caller and overlays live presence
	status, body := f.do(t, http.MethodGet, "/api/users?search=bob", "tok-u1", nil)
	req.Equal(http.StatusOK, status)
	found := decode[[]model.User](t, body)
	req.Len(found, 2)
	byID := map[model.UserID]model.User{}
	for _, u := range found {
		byID[u.ID] = u
	}
	req.True(byID["u2"].IsOnline)
	req.False(byID["u3"].IsOnline)

	// Without a search term every user except the caller is listed
	status, body = f.do(t, http.MethodGet, "/api/users", "tok-u1", nil)
	req.Equal(http.StatusOK, status)
	req.ElementsMatch([]model.UserID{"u2", "u3"}, lo.Map(decode[[]model.User](t, body), func(u model.User, _ int) model.UserID { return u.ID }))

	status, body = f.do(t, http.MethodGet, "/api/users?limit=1", "tok-u1", nil)
	req.Equal(http.StatusOK, status)
	req.Len(decode[[]model.User](t, body), 1)

	status, _ = f.do(t, http.MethodGet, "/api/users?limit=0", "tok-u1", nil)
	req.Equal(http.StatusBadRequest, status)

	status, body = f.do(t, http.MethodGet, "/api/users/online", "tok-u1", nil)
	req.Equal(http.StatusOK, status)
	online := decode[[]model.User](t, body)
	req.Len(online, 1)
	req.Equal(model.UserID("u2"), online[0].ID)

	status, body = f.do(t, http.MethodGet, "/api/users/u3", "tok-u1", nil)
	req.Equal(http.StatusOK, status)
	req.Equal("Bobby", decode[model.User](t, body).Name)

	status, _ = f.do(t, http.MethodGet, "/api/users/nobody", "tok-u1", nil)
	req.Equal(http.StatusNotFound, status)
}

func TestREST_MessageFlow(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "")

	// Given: u1 writes to u2 over REST
	status, body := f.do(t, http.MethodPost, "/api/messages", "tok-u1", map[string]string{"receiverId": "u2", "content": "hi"})
	req.Equal(http.StatusCreated, status)
	created := decode[model.Message](t, body)
	req.Equal("Alice", created.Sender.Name)
	req.Equal("Bob", created.Receiver.Name)
	req.Equal(model.KindText, created.Kind)

	// Then: it was announced for live delivery
	req.Len(f.announcer.msgs, 1)
	req.Equal(created.ID, f.announcer.msgs[0].ID)

	// And: both sides see it in history
	status, body = f.do(t, http.MethodGet, "/api/messages/u1", "tok-u2", nil)
	req.Equal(http.StatusOK, status)
	history := decode[[]model.Message](t, body)
	req.Len(history, 1)
	req.Equal("hi", history[0].Content)

	status, body = f.do(t, http.MethodGet, "/api/messages/unread/count", "tok-u2", nil)
	req.Equal(http.StatusOK, status)
	req.JSONEq(`{"unreadCount":1}`, string(body))

	// Only the receiver may mark it read
	path := "/api/messages/" + created.ID.String() + "/read"
	status, _ = f.do(t, http.MethodPut, path, "tok-u1", nil)
	req.Equal(http.StatusNotFound, status)

	status, body = f.do(t, http.MethodPut, path, "tok-u2", nil)
	req.Equal(http.StatusOK, status)
	read := decode[model.Message](t, body)
	req.True(read.IsRead)
	req.NotNil(read.ReadAt)

	status, body = f.do(t, http.MethodGet, "/api/messages/unread/count", "tok-u2", nil)
	req.Equal(http.StatusOK, status)
	req.JSONEq(`{"unreadCount":0}`, string(body))
}

func TestREST_CreateMessageRejects(t *testing.T) {
	f := newFixture(t, "")

	for name, tc := range map[string]struct {
		body any
		want int
	}{
		"unknown receiver": {body: map[string]string{"receiverId": "ghost", "content": "hi"}, want: http.StatusNotFound},
		"empty content":    {body: map[string]string{"receiverId": "u2", "content": ""}, want: http.StatusBadRequest},
		"bad kind":         {body: map[string]string{"receiverId": "u2", "content": "hi", "messageType": "video"}, want: http.StatusBadRequest},
		"not an object":    {body: "hi", want: http.StatusBadRequest},
	} {
		t.Run(name, func(t *testing.T) {
			status, _ := f.do(t, http.MethodPost, "/api/messages", "tok-u1", tc.body)
			require.Equal(t, tc.want, status)
		})
	}
	require.Empty(t, f.announcer.msgs)

	status, _ := f.do(t, http.MethodPut, "/api/messages/not-a-uuid/read", "tok-u2", nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodGet, "/api/messages/u2?limit=0", "tok-u1", nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestREST_Logout(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "")

	status, body := f.do(t, http.MethodPost, "/api/auth/logout", "tok-u1", nil)
	req.Equal(http.StatusOK, status)
	req.JSONEq(`{"closed":1}`, string(body))

	revoked, err := f.revoker.IsRevoked(context.Background(), "jti-u1")
	req.NoError(err)
	req.True(revoked)
	req.Equal([]string{"jti-u1"}, f.lifecycle.tokens)
}

func TestREST_AdminDisconnect(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testAdminKey)

	status, _ := f.do(t, http.MethodPost, "/admin/users/u2/disconnect", "", nil)
	req.Equal(http.StatusForbidden, status)

	status, body := f.do(t, http.MethodPost, "/admin/users/u2/disconnect", "", nil, "X-Admin-Key", testAdminKey)
	req.Equal(http.StatusOK, status)
	req.JSONEq(`{"closed":2}`, string(body))
	req.Equal([]model.UserID{"u2"}, f.lifecycle.invalidated)
}

func TestREST_AdminDisabledWithoutKey(t *testing.T) {
	f := newFixture(t, "")

	status, _ := f.do(t, http.MethodPost, "/admin/users/u2/disconnect", "", nil, "X-Admin-Key", "")
	require.Equal(t, http.StatusNotFound, status)
}

func TestREST_Ops(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "")
	f.online(t, "u1")

	status, body := f.do(t, http.MethodGet, "/healthz", "", nil)
	req.Equal(http.StatusOK, status)
	req.JSONEq(`{"status":"ok"}`, string(body))

	status, body = f.do(t, http.MethodGet, "/stats", "", nil)
	req.Equal(http.StatusOK, status)
	stats := decode[model.HubStats](t, body)
	req.Equal(1, stats.TotalUsers)
	req.Equal(1, stats.TotalConnections)

	status, body = f.do(t, http.MethodGet, "/metrics", "", nil)
	req.Equal(http.StatusOK, status)
	req.Contains(string(body), "im_presence_")
}
