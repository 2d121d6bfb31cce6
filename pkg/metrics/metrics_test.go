package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClientMetricsExistAndIncrement(t *testing.T) {
	before := testutil.ToFloat64(RefreshTotal.WithLabelValues("success"))
	RefreshTotal.WithLabelValues("success").Inc()
	if v := testutil.ToFloat64(RefreshTotal.WithLabelValues("success")); v != before+1 {
		t.Fatalf("expected RefreshTotal to grow by 1, got %v -> %v", before, v)
	}

	RequestErrors.WithLabelValues("auth_expired").Add(2)
	if v := testutil.ToFloat64(RequestErrors.WithLabelValues("auth_expired")); v < 2 {
		t.Fatalf("expected RequestErrors >= 2, got %v", v)
	}

	RefreshWaiters.Set(3)
	if v := testutil.ToFloat64(RefreshWaiters); v != 3 {
		t.Fatalf("expected RefreshWaiters == 3, got %v", v)
	}
	RefreshWaiters.Set(0)
}

func TestMetricsHandlerExposesClientMetrics(t *testing.T) {
	Replays.WithLabelValues("success").Inc()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "reauth_client_replays_total") {
		t.Fatalf("expected replay metric in output")
	}
}
