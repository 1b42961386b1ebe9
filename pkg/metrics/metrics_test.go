package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveHTTPRequest(t *testing.T) {
	counter := HTTPRequestsTotal.WithLabelValues("GET", "/cart/ws", "101")
	before := testutil.ToFloat64(counter)

	ObserveHTTPRequest("GET", "/cart/ws", "101", time.Now())

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("http_requests_total = %v, want %v", got, before+1)
	}
}

func TestObserveReconcile(t *testing.T) {
	counter := ReconcileOutcomesTotal.WithLabelValues("dropped_stale")
	before := testutil.ToFloat64(counter)

	ObserveReconcile("dropped_stale", time.Now())

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("reconcile_outcomes_total = %v, want %v", got, before+1)
	}
}
