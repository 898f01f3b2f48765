package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/metrics"
	"github.com/webitel/im-presence-service/infra/worker"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

const statusWriteTimeout = 5 * time.Second

// StatusWriter persists presence edges off the live path. A single worker
// keeps the writes of one user in the order they were enqueued.
type StatusWriter struct {
	users   UserStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	mailbox *worker.Mailbox[model.StatusUpdate]
}

func NewStatusWriter(cfg *config.Config, users UserStore, logger *slog.Logger, m *metrics.Metrics) *StatusWriter {
	w := &StatusWriter{users: users, logger: logger, metrics: m}
	w.mailbox = worker.New("presence-status", cfg.Presence.StatusQueueSize, w.write,
		worker.WithLogger(logger),
		worker.WithDropHook(func() { m.QueueDrops.WithLabelValues("presence_status").Inc() }),
	)
	return w
}

// Enqueue never blocks; a full queue drops the update.
func (w *StatusWriter) Enqueue(u model.StatusUpdate) bool {
	return w.mailbox.Offer(u)
}

func (w *StatusWriter) Start() { w.mailbox.Start() }

// Stop flushes queued updates until ctx expires.
func (w *StatusWriter) Stop(ctx context.Context) error { return w.mailbox.Stop(ctx) }

func (w *StatusWriter) write(ctx context.Context, u model.StatusUpdate) {
	ctx, cancel := context.WithTimeout(ctx, statusWriteTimeout)
	defer cancel()

	if err := w.users.SetOnlineStatus(ctx, u.UserID, u.Online, u.At); err != nil {
		// Presence is still correct in memory; the durable flag catches up on the next edge.
		w.metrics.StoreErrors.WithLabelValues("set_online_status").Inc()
		w.logger.Error("PRESENCE_STATUS_UPDATE_FAILED",
			"user_id", u.UserID,
			"online", u.Online,
			"err", err,
		)
	}
}
