package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-presence-service/infra/metrics"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

func TestStatusWriter_AppliesInOrder(t *testing.T) {
	req := require.New(t)
	users := newFakeUsers("u1")
	w := NewStatusWriter(testConfig(), users, discardLogger(), metrics.New())
	w.Start()

	at := time.Now()
	for i := 0; i < 10; i++ {
		req.True(w.Enqueue(model.StatusUpdate{UserID: "u1", Online: i%2 == 0, At: at.Add(time.Duration(i))}))
	}
	req.NoError(w.Stop(context.Background()))

	log := users.statusLog()
	req.Len(log, 10)
	req.False(log[9].Online)
	req.False(users.users["u1"].IsOnline)
}

func TestStatusWriter_FailureIsCountedNotFatal(t *testing.T) {
	req := require.New(t)
	users := newFakeUsers("u1")
	users.setErr = model.ErrStorage
	m := metrics.New()

	w := NewStatusWriter(testConfig(), users, discardLogger(), m)
	w.Start()
	req.True(w.Enqueue(model.StatusUpdate{UserID: "u1", Online: true, At: time.Now()}))
	req.True(w.Enqueue(model.StatusUpdate{UserID: "u1", Online: false, At: time.Now()}))
	req.NoError(w.Stop(context.Background()))

	req.Equal(2.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("set_online_status")))
}

func TestStatusWriter_FullQueueDrops(t *testing.T) {
	req := require.New(t)
	cfg := testConfig()
	cfg.Presence.StatusQueueSize = 1
	m := metrics.New()

	// Not started: the single slot fills up.
	w := NewStatusWriter(cfg, newFakeUsers(), discardLogger(), m)
	req.True(w.Enqueue(model.StatusUpdate{UserID: "u1", Online: true}))
	req.False(w.Enqueue(model.StatusUpdate{UserID: "u1", Online: false}))
	req.Equal(1.0, testutil.ToFloat64(m.QueueDrops.WithLabelValues("presence_status")))
	req.NoError(w.Stop(context.Background()))
}
