package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.RecordNegotiation(true)
	m.RecordAction("exec")
	m.RecordAction("exec")
	m.RecordProtocolError()
	m.RecordDecision("approve")
	m.RecordResult("ok", true)
	m.RecordResult("denied", false)
	m.ExecutionStarted()
	m.ExecutionFinished("exec", 50*time.Millisecond)
	m.SetPending(3)

	body := scrape(t, m)
	assert.Contains(t, body, `serverwitch_session_negotiations_total{status="success"} 1`)
	assert.Contains(t, body, `serverwitch_actions_received_total{kind="exec"} 2`)
	assert.Contains(t, body, `serverwitch_protocol_errors_total 1`)
	assert.Contains(t, body, `serverwitch_decisions_total{decision="approve"} 1`)
	assert.Contains(t, body, `serverwitch_results_total{status="ok"} 1`)
	assert.Contains(t, body, `serverwitch_result_send_errors_total 1`)
	assert.Contains(t, body, `serverwitch_executions_in_flight 0`)
	assert.Contains(t, body, `serverwitch_execution_duration_seconds_count{kind="exec"} 1`)
	assert.Contains(t, body, `serverwitch_pending_confirmations 3`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordNegotiation(false)
		m.RecordAction("read_file")
		m.RecordProtocolError()
		m.RecordDecision("deny")
		m.RecordResult("error", true)
		m.ExecutionStarted()
		m.ExecutionFinished("read_file", time.Second)
		m.SetPending(1)
	})
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordProtocolError()
	assert.Contains(t, scrape(t, b), `serverwitch_protocol_errors_total 0`)
}

func TestMetrics_Serve(t *testing.T) {
	m := NewMetrics()
	m.RecordAction("write_file")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := m.Serve(ctx, "127.0.0.1:0", zerolog.Nop())
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `serverwitch_actions_received_total{kind="write_file"} 1`)
}

func TestMetrics_ServeBindError(t *testing.T) {
	m := NewMetrics()
	_, err := m.Serve(context.Background(), "256.0.0.1:99999", zerolog.Nop())
	assert.Error(t, err)
}
