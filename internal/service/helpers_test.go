package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/metrics"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/domain/registry"
)

const testSecret = "unit-test-secret-0123456789"

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{Secret: testSecret, RevocationTTL: time.Hour},
		Hub: config.HubConfig{
			Shards:         4,
			MailboxSize:    64,
			SendBufferSize: 64,
			SendTimeout:    50 * time.Millisecond,
		},
		Presence: config.PresenceConfig{StatusQueueSize: 256, NotifyQueueSize: 256},
		Cache:    config.CacheConfig{PeerSize: 128, PeerTTL: time.Minute},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// --- stores ---

type fakeUsers struct {
	mu       sync.Mutex
	users    map[model.UserID]*model.User
	statuses []model.StatusUpdate
	findErr  error
	setErr   error
	finds    int
}

func newFakeUsers(ids ...model.UserID) *fakeUsers {
	f := &fakeUsers{users: make(map[model.UserID]*model.User)}
	for _, id := range ids {
		f.users[id] = &model.User{ID: id, Name: "name-" + string(id), Email: string(id) + "@example.com"}
	}
	return f
}

func (f *fakeUsers) findCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finds
}

func (f *fakeUsers) FindByID(_ context.Context, id model.UserID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) FindByIDs(ctx context.Context, ids []model.UserID) ([]*model.User, error) {
	var out []*model.User
	for _, id := range ids {
		u, err := f.FindByID(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) Search(_ context.Context, _ string, exclude model.UserID, _ int) ([]*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.User
	for id, u := range f.users {
		if id != exclude {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsers) SetOnlineStatus(_ context.Context, id model.UserID, online bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.statuses = append(f.statuses, model.StatusUpdate{UserID: id, Online: online, At: at})
	if u, ok := f.users[id]; ok {
		u.IsOnline, u.LastSeen = online, at
	}
	return nil
}

func (f *fakeUsers) statusLog() []model.StatusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.StatusUpdate(nil), f.statuses...)
}

type fakeMessages struct {
	mu        sync.Mutex
	created   []*model.Message
	createErr error
}

func (f *fakeMessages) Create(_ context.Context, msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, msg)
	return nil
}

func (f *fakeMessages) History(context.Context, model.UserID, model.UserID, int) ([]*model.Message, error) {
	return nil, nil
}

func (f *fakeMessages) MarkRead(context.Context, uuid.UUID, model.UserID, time.Time) (*model.Message, error) {
	return nil, model.ErrNotFound
}

func (f *fakeMessages) UnreadCount(context.Context, model.UserID) (int64, error) { return 0, nil }

func (f *fakeMessages) all() []*model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Message(nil), f.created...)
}

type fakeRevoker struct {
	mu      sync.Mutex
	revoked map[string]bool
	err     error
}

func (f *fakeRevoker) Revoke(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revoked == nil {
		f.revoked = make(map[string]bool)
	}
	f.revoked[id] = true
	return nil
}

func (f *fakeRevoker) IsRevoked(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[id], f.err
}

type fakeExporter struct {
	mu     sync.Mutex
	events []event.Eventer
}

func (f *fakeExporter) Export(ev event.Eventer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return true
}

func (f *fakeExporter) kinds() []event.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event.EventKind, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.GetKind())
	}
	return out
}

// recordingNotifier captures broadcasts synchronously.
type recordingNotifier struct {
	mu     sync.Mutex
	events []model.PresenceEvent
}

func (n *recordingNotifier) NotifyAll(pe model.PresenceEvent) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, pe)
	return true
}

func (n *recordingNotifier) count(status model.PresenceStatus) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, pe := range n.events {
		if pe.Status == status {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) sequence(id model.UserID) []model.PresenceStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.PresenceStatus
	for _, pe := range n.events {
		if pe.User.ID == id {
			out = append(out, pe.Status)
		}
	}
	return out
}

// --- tokens ---

type tokenOpt func(*Claims)

func withJTI(id string) tokenOpt { return func(c *Claims) { c.ID = id } }

func withExpiry(at time.Time) tokenOpt {
	return func(c *Claims) { c.ExpiresAt = jwt.NewNumericDate(at) }
}

func signToken(t *testing.T, userID model.UserID, opts ...tokenOpt) string {
	t.Helper()
	claims := &Claims{
		UserID: string(userID),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	for _, opt := range opts {
		opt(claims)
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

// --- harness ---

type harness struct {
	cfg      *config.Config
	users    *fakeUsers
	messages *fakeMessages
	revoker  *fakeRevoker
	exporter *fakeExporter
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	hub      *registry.Hub
	status   *StatusWriter
	auth     *AuthService
	manager  *ConnectionManager
	router   *EventRouter
}

func newHarness(t *testing.T, ids ...model.UserID) *harness {
	t.Helper()

	h := &harness{
		cfg:      testConfig(),
		users:    newFakeUsers(ids...),
		messages: &fakeMessages{},
		revoker:  &fakeRevoker{},
		exporter: &fakeExporter{},
		notifier: &recordingNotifier{},
		metrics:  metrics.New(),
	}
	log := discardLogger()

	h.hub = registry.NewHub(registry.WithShards(h.cfg.Hub.Shards), registry.WithSendTimeout(h.cfg.Hub.SendTimeout))
	h.status = NewStatusWriter(h.cfg, h.users, log, h.metrics)
	h.status.Start()
	h.auth = NewAuthService(h.cfg, h.users, h.revoker)
	h.manager = NewConnectionManager(h.cfg, h.auth, h.hub, h.status, h.notifier, log, h.metrics)
	enricher := NewPeerEnricherService(h.cfg, h.users)
	h.router = NewEventRouter(h.cfg, h.hub, h.messages, enricher, h.exporter, noop.NewTracerProvider().Tracer(""), log, h.metrics)

	t.Cleanup(func() {
		_ = h.status.Stop(context.Background())
		h.hub.Shutdown()
	})
	return h
}

// connect opens a connection for id and consumes the connected greeting.
func (h *harness) connect(t *testing.T, id model.UserID) registry.Connector {
	t.Helper()
	conn, err := h.manager.Connect(context.Background(), signToken(t, id), registry.ConnectMetadata{Platform: "test"})
	require.NoError(t, err)

	ev := nextEvent(t, conn)
	require.Equal(t, event.Connected, ev.GetKind())
	return conn
}

func nextEvent(t *testing.T, conn registry.Connector) event.Eventer {
	t.Helper()
	select {
	case ev := <-conn.Recv():
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event for %s within 1s", conn.GetUserID())
		return nil
	}
}

func requireNoEvent(t *testing.T, conn registry.Connector, within time.Duration) {
	t.Helper()
	select {
	case ev := <-conn.Recv():
		t.Fatalf("unexpected %s for %s", ev.GetKind(), conn.GetUserID())
	case <-time.After(within):
	}
}
