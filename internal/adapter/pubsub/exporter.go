package pubsub

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/im-presence-service/infra/metrics"
	"github.com/webitel/im-presence-service/infra/worker"
	"github.com/webitel/im-presence-service/internal/domain/event"
)

const publishTimeout = 5 * time.Second

// AsyncExporter decouples the live path from broker latency; a full queue
// sheds events rather than stalling delivery.
type AsyncExporter struct {
	dispatcher EventDispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	mailbox    *worker.Mailbox[event.Eventer]
}

func NewAsyncExporter(dispatcher EventDispatcher, size int, logger *slog.Logger, m *metrics.Metrics) *AsyncExporter {
	e := &AsyncExporter{dispatcher: dispatcher, logger: logger, metrics: m}
	e.mailbox = worker.New("bus-export", size, e.publish,
		worker.WithLogger(logger),
		worker.WithDropHook(func() { m.QueueDrops.WithLabelValues("bus_export").Inc() }),
	)
	return e
}

// Export only queues events that carry a routing key.
func (e *AsyncExporter) Export(ev event.Eventer) bool {
	exp, ok := ev.(event.Exportable)
	if !ok || exp.GetRoutingKey() == "" {
		return false
	}
	return e.mailbox.Offer(ev)
}

func (e *AsyncExporter) Start() { e.mailbox.Start() }

func (e *AsyncExporter) Stop(ctx context.Context) error { return e.mailbox.Stop(ctx) }

func (e *AsyncExporter) publish(ctx context.Context, ev event.Eventer) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := e.dispatcher.Publish(ctx, ev); err != nil {
		e.metrics.BusPublished.WithLabelValues("error").Inc()
		e.logger.Warn("BUS_EXPORT_FAILED", "event", ev.GetKind(), "id", ev.GetID(), "err", err)
		return
	}
	e.metrics.BusPublished.WithLabelValues("ok").Inc()
}
