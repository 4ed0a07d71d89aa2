package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounters(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveDecision("baseline", "skip", "claimed_by_sandbox")
	c.ObserveDecision("baseline", "skip", "claimed_by_sandbox")
	c.ObserveRefresh(RefreshFailure, 10*time.Millisecond)
	c.ObserveTask("withdraw", TaskSkipped)

	if got := testutil.ToFloat64(c.decisionsTotal.WithLabelValues("baseline", "skip", "claimed_by_sandbox")); got != 2 {
		t.Errorf("decisions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.refreshTotal.WithLabelValues(RefreshFailure)); got != 1 {
		t.Errorf("refresh failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.tasksTotal.WithLabelValues("withdraw", TaskSkipped)); got != 1 {
		t.Errorf("skipped tasks = %v, want 1", got)
	}
}

func TestSetRulesSnapshot(t *testing.T) {
	c := New(prometheus.NewRegistry())
	at := time.Unix(1700000000, 0)

	c.SetRulesSnapshot(3, 2, at)

	if got := testutil.ToFloat64(c.generation); got != 3 {
		t.Errorf("generation = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.activeKeys); got != 2 {
		t.Errorf("active keys = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.lastRefreshEpoch); got != 1700000000 {
		t.Errorf("last refresh = %v", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveDecision("baseline", "proceed", "no_routing_key")
	c.ObserveRefresh(RefreshSuccess, time.Second)
	c.SetRulesSnapshot(1, 1, time.Now())
	c.ObserveTask("deposit", TaskSucceeded)
	if c.Registry() != nil {
		t.Error("nil collector should have no registry")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New(nil)
	c.ObserveDecision("sandbox:canary1", "proceed", "claimed_by_sandbox")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "sandbox_router_gate_decisions_total") {
		t.Errorf("metrics output missing decisions counter:\n%s", body)
	}
}
