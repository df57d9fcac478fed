package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/port_link"
	"github.com/NotCoffee418/panel_bridge/pkg/types"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestJobMetrics(t *testing.T) {
	r := require.New(t)
	m := NewMetrics()

	m.JobEnqueued(types.JobAction)
	m.JobEnqueued(types.JobAction)
	m.JobRejected("")
	m.JobStarted(types.JobAction)
	r.Contains(scrape(t, m), "panel_bridge_job_running 1")

	m.JobFinished(types.JobAction, types.JobTimeout, 1500*time.Millisecond)
	m.QueueDepth(3)

	body := scrape(t, m)
	r.Contains(body, `panel_bridge_jobs_enqueued_total{kind="action"} 2`)
	r.Contains(body, `panel_bridge_jobs_rejected_total{kind="unknown"} 1`)
	r.Contains(body, `panel_bridge_jobs_finished_total{kind="action",status="timeout"} 1`)
	r.Contains(body, `panel_bridge_job_duration_seconds_count{kind="action"} 1`)
	r.Contains(body, "panel_bridge_job_running 0")
	r.Contains(body, "panel_bridge_queue_depth 3")
}

func TestHandlerExposesLinkCounters(t *testing.T) {
	r := require.New(t)
	m := NewMetrics()
	var link port_link.LinkMetrics
	link.BytesSent.Add(42)
	link.ReconnectCount.Add(1)
	m.RegisterLink(&link)
	m.ClientConnected()

	body := scrape(t, m)
	r.Contains(body, "panel_bridge_serial_bytes_sent_total 42")
	r.Contains(body, "panel_bridge_serial_reconnects_total 1")
	r.Contains(body, "panel_bridge_websocket_clients 1")
}
