package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestsTotal counts dispatcher attempts by method and response status.
	// Transport failures are recorded with status "error".
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proximl_client_requests_total",
			Help: "Total number of API request attempts",
		},
		[]string{"method", "status"},
	)

	// RetriesTotal counts backoff retries after a gateway-unavailable response
	RetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proximl_client_retries_total",
			Help: "Total number of retried API requests",
		},
	)

	// ReconnectsTotal counts log subscription reconnect attempts
	ReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proximl_client_ws_reconnects_total",
			Help: "Total number of log subscription reconnects",
		},
		[]string{"entity", "outcome"},
	)

	// FramesTotal counts frames received per entity type
	FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proximl_client_ws_frames_total",
			Help: "Total number of log subscription frames received",
		},
		[]string{"entity"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RetriesTotal)
	prometheus.MustRegister(ReconnectsTotal)
	prometheus.MustRegister(FramesTotal)
}
