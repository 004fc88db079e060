package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_DefaultNamespace(t *testing.T) {
	c := NewCollector("")
	c.ObserveUnhandled("button")

	n, err := testutil.GatherAndCount(c.Registry(), "guildbot_dispatch_unhandled_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollector_Invocations(t *testing.T) {
	c := NewCollector("test")
	c.ObserveInvocation("command/ping", true, 5*time.Millisecond)
	c.ObserveInvocation("command/ping", true, 7*time.Millisecond)
	c.ObserveInvocation("command/ping", false, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.invocations.WithLabelValues("command/ping", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.invocations.WithLabelValues("command/ping", "failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.invocationLatency))
}

func TestCollector_StoreAndSweep(t *testing.T) {
	c := NewCollector("test")
	c.ObserveStoreOp("write", false)
	c.ObserveSweep("mail-idle", 20*time.Millisecond, nil)
	c.ObserveSweep("mail-idle", 20*time.Millisecond, errors.New("boom"))
	c.SetQueueDepth(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOps.WithLabelValues("write", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sweepRuns.WithLabelValues("mail-idle", "failure")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.queueDepth))

	expected := `
# HELP test_sweep_runs_total Periodic job runs by job and result
# TYPE test_sweep_runs_total counter
test_sweep_runs_total{job="mail-idle",result="failure"} 1
test_sweep_runs_total{job="mail-idle",result="success"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "test_sweep_runs_total"))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("test")
	c.ObserveInvocation("command/ping", true, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_dispatch_invocations_total{action="command/ping",result="success"} 1`)
}
