package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/metrics"
	"github.com/webitel/im-presence-service/infra/worker"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/domain/registry"
	"golang.org/x/sync/errgroup"
)

// fanoutParallelism bounds concurrent per-connection sends of one broadcast.
const fanoutParallelism = 64

// Notifier broadcasts presence transitions to every open connection.
type Notifier interface {
	// NotifyAll enqueues the broadcast and returns immediately.
	NotifyAll(pe model.PresenceEvent) bool
}

type PresenceNotifier struct {
	hub         registry.Hubber
	exporter    Exporter
	sendTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	mailbox     *worker.Mailbox[model.PresenceEvent]
}

func NewPresenceNotifier(
	cfg *config.Config,
	hub registry.Hubber,
	exporter Exporter,
	logger *slog.Logger,
	m *metrics.Metrics,
) *PresenceNotifier {
	n := &PresenceNotifier{
		hub:         hub,
		exporter:    exporter,
		sendTimeout: cfg.Hub.SendTimeout,
		logger:      logger,
		metrics:     m,
	}
	n.mailbox = worker.New("presence-notify", cfg.Presence.NotifyQueueSize, n.broadcast,
		worker.WithLogger(logger),
		worker.WithDropHook(func() { m.QueueDrops.WithLabelValues("presence_notify").Inc() }),
	)
	return n
}

func (n *PresenceNotifier) NotifyAll(pe model.PresenceEvent) bool {
	return n.mailbox.Offer(pe)
}

func (n *PresenceNotifier) Start() { n.mailbox.Start() }

func (n *PresenceNotifier) Stop(ctx context.Context) error { return n.mailbox.Stop(ctx) }

// broadcast sends one shared event instance to every connection, so the wire
// encoding is computed once and cached on the event.
func (n *PresenceNotifier) broadcast(_ context.Context, pe model.PresenceEvent) {
	ev := event.NewPresenceEvent(pe)

	var g errgroup.Group
	g.SetLimit(fanoutParallelism)

	var sent, dropped atomic.Int64
	n.hub.Each(func(conn registry.Connector) {
		g.Go(func() error {
			if conn.Send(ev, n.sendTimeout) {
				sent.Add(1)
			} else {
				dropped.Add(1)
			}
			return nil
		})
	})
	_ = g.Wait()

	if d := dropped.Load(); d > 0 {
		n.metrics.EventsDropped.WithLabelValues(ev.GetKind().String()).Add(float64(d))
	}
	n.metrics.EventsRouted.WithLabelValues(ev.GetKind().String()).Add(float64(sent.Load()))

	if n.exporter != nil {
		n.exporter.Export(ev)
	}

	n.logger.Debug("PRESENCE_BROADCAST",
		"user_id", pe.User.ID,
		"status", pe.Status,
		"sent", sent.Load(),
		"dropped", dropped.Load(),
	)
}
