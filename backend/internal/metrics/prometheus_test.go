package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusHandler_ExposesSnapshot(t *testing.T) {
	m := New()
	m.Inc(Joins)
	m.Add(MessagesRelayed, 3)
	m.Inc(`quote"back\slash`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	PrometheusHandler(m).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "# TYPE axivid_signaling_events_total counter")
	assert.Contains(t, body, `axivid_signaling_events_total{event="joins"} 1`)
	assert.Contains(t, body, `axivid_signaling_events_total{event="messages_relayed"} 3`)
	assert.Contains(t, body, `axivid_signaling_events_total{event="quote\"back\\slash"} 1`)
}

func TestPrometheusHandler_NilMetrics(t *testing.T) {
	rr := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	m.Inc(Joins)
	assert.Zero(t, m.Get(Joins))
	assert.Empty(t, m.Snapshot())
}
