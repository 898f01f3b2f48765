package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

const namespace = "im_presence"

// Metrics owns a private registry; collectors are registered once per instance
// so independent instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	ActiveConnections prometheus.Gauge
	OnlineUsers       prometheus.Gauge
	EventsRouted      *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
	RoutingMisses     *prometheus.CounterVec
	AuthFailures      prometheus.Counter
	StoreErrors       *prometheus.CounterVec
	QueueDrops        *prometheus.CounterVec
	BusPublished      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Open authenticated connections",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with at least one open connection",
		}),
		EventsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_routed_total",
			Help:      "Events handed to connection mailboxes",
		}, []string{"kind"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because a connection buffer was full",
		}, []string{"kind"}),
		RoutingMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_misses_total",
			Help:      "Events addressed to users without open connections",
		}, []string{"kind"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected connection or request tokens",
		}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed store operations",
		}, []string{"op"}),
		QueueDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_drops_total",
			Help:      "Work items rejected by a full background queue",
		}, []string{"queue"}),
		BusPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_published_total",
			Help:      "Events exported to the event bus",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ActiveConnections,
		m.OnlineUsers,
		m.EventsRouted,
		m.EventsDropped,
		m.RoutingMisses,
		m.AuthFailures,
		m.StoreErrors,
		m.QueueDrops,
		m.BusPublished,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var Module = fx.Module("metrics", fx.Provide(New))
