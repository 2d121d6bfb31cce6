package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reauth_client_requests_total",
		Help: "Total number of logical requests sent through the authenticated client",
	}, []string{"method"})
	RequestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reauth_client_request_errors_total",
		Help: "Total number of requests that failed terminally, by error kind",
	}, []string{"kind"})
	// Credential refresh metrics
	RefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reauth_client_refresh_total",
		Help: "Total number of credential refresh rounds, by result",
	}, []string{"result"})
	RefreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reauth_client_refresh_duration_seconds",
		Help:    "Duration of credential refresh calls",
		Buckets: prometheus.DefBuckets,
	})
	RefreshWaiters = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reauth_client_refresh_waiters",
		Help: "Number of requests queued on the in-flight credential refresh",
	})
	Replays = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reauth_client_replays_total",
		Help: "Total number of requests replayed after a credential refresh, by result",
	}, []string{"result"})

	// Dev server metrics
	ServerTokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reauth_devserver_tokens_issued_total",
		Help: "Total number of tokens issued by the dev server, by grant type",
	}, []string{"grant_type"})
	ServerUnauthorized = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reauth_devserver_unauthorized_total",
		Help: "Total number of requests rejected by the dev server with 401",
	}, []string{"reason"})
	ServerRateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reauth_devserver_rate_limited_total",
		Help: "Total number of token requests rejected by the dev server with 429",
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(Requests)
	prometheus.MustRegister(RequestErrors)
	prometheus.MustRegister(RefreshTotal)
	prometheus.MustRegister(RefreshDuration)
	prometheus.MustRegister(RefreshWaiters)
	prometheus.MustRegister(Replays)
	prometheus.MustRegister(ServerTokensIssued)
	prometheus.MustRegister(ServerUnauthorized)
	prometheus.MustRegister(ServerRateLimited)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
