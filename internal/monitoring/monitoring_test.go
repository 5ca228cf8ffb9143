package monitoring_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askcos/prediction-gateway/internal/monitoring"
)

// =============================================================================
// LOGGER
// =============================================================================

func TestLogger_CtxAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := monitoring.NewFromZerolog(zerolog.New(&buf))

	ctx := monitoring.WithRequestIDContext(context.Background(), "req-123")
	logger.Component("adapters").Ctx(ctx).Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "adapters", entry["component"])
	assert.Equal(t, "hello", entry["message"])
}

func TestLogger_CtxWithoutRequestID(t *testing.T) {
	logger := monitoring.Nop()
	assert.Same(t, logger, logger.Ctx(context.Background()))
	assert.Equal(t, "", monitoring.RequestIDFromContext(context.Background()))
}

// =============================================================================
// METRICS
// =============================================================================

func TestMetrics_Counters(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())

	m.RecordRequest("/api/retro/call-sync", 200, 10*time.Millisecond)
	m.RecordRequest("/api/retro/call-sync", 200, 20*time.Millisecond)
	m.IncTaskSubmitted("retro_graph2smiles", 2)
	m.IncTaskFinished("retro_graph2smiles", "succeeded")
	m.SetQueueDepth("generic", 1, 4)
	m.WorkerBusy("generic", true)

	reg := m.Registry()
	require.NotNil(t, reg)

	count, err := testutil.GatherAndCount(reg, "prediction_gateway_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected := `
# HELP prediction_gateway_queue_depth Items waiting in each priority channel.
# TYPE prediction_gateway_queue_depth gauge
prediction_gateway_queue_depth{priority="1",queue="generic"} 4
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "prediction_gateway_queue_depth"))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *monitoring.Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/x", 500, time.Second)
		m.ObserveBackendCall("a", monitoring.OutcomeTimeout, time.Second)
		m.IncTaskSubmitted("q", 1)
		m.IncTaskFinished("q", "failed")
		m.SetQueueDepth("q", 0, 1)
		m.WorkerBusy("q", false)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := monitoring.NewMetrics(nil)
	m.ObserveBackendCall("retro_template_relevance", monitoring.OutcomeSuccess, 300*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "prediction_gateway_backend_call_duration_seconds")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// =============================================================================
// TELEMETRY
// =============================================================================

func TestTracker_WritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry", "tasks.jsonl")
	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{Enabled: true, LogPath: path})
	require.NoError(t, err)

	tracker.RecordTask(&monitoring.TaskEvent{TaskID: "t1", Adapter: "retro_controller", State: "succeeded", StatusCode: 200})
	tracker.RecordTask(&monitoring.TaskEvent{TaskID: "t2", Adapter: "retro_controller", State: "failed", StatusCode: 504})
	require.NoError(t, tracker.Close())
	assert.Equal(t, 2, tracker.Events())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev monitoring.TaskEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		ids = append(ids, ev.TaskID)
	}
	assert.Equal(t, []string{"t1", "t2"}, ids)
}

func TestTracker_DisabledIsNoop(t *testing.T) {
	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{})
	require.NoError(t, err)
	tracker.RecordTask(&monitoring.TaskEvent{TaskID: "t1"})
	assert.Equal(t, 0, tracker.Events())
}

// =============================================================================
// ALERTS
// =============================================================================

func TestAlertManager_HighLatencyThreshold(t *testing.T) {
	var buf bytes.Buffer
	logger := monitoring.NewFromZerolog(zerolog.New(&buf))
	am := monitoring.NewAlertManager(logger, monitoring.AlertConfig{HighLatencyThreshold: time.Second})

	am.FlagHighLatency("r1", 500*time.Millisecond, "/api/retro/call-sync")
	assert.Empty(t, buf.String())

	am.FlagHighLatency("r2", 2*time.Second, "/api/retro/call-sync")
	assert.Contains(t, buf.String(), "high_latency")

	buf.Reset()
	am.FlagUpstreamError("r3", "retro_graph2smiles", 500, errors.New("boom"))
	assert.Contains(t, buf.String(), "upstream_error")
}
