package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_IndependentInstances(t *testing.T) {
	req := require.New(t)

	a, b := New(), New()
	a.EventsRouted.WithLabelValues("new_message").Inc()

	req.Equal(1.0, testutil.ToFloat64(a.EventsRouted.WithLabelValues("new_message")))
	req.Equal(0.0, testutil.ToFloat64(b.EventsRouted.WithLabelValues("new_message")))
}

func TestMetrics_Handler(t *testing.T) {
	req := require.New(t)

	m := New()
	m.ActiveConnections.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	req.NoError(err)
	req.Contains(string(body), "im_presence_active_connections 3")
}
