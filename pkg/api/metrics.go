package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polystore_requests_total",
		Help: "Dispatched CRUD operations by engine, operation and outcome.",
	}, []string{"engine", "operation", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polystore_request_duration_seconds",
		Help:    "Latency of dispatched CRUD operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"engine", "operation"})
)

func observe(engine, operation, outcome string, start time.Time) {
	requestsTotal.WithLabelValues(engine, operation, outcome).Inc()
	requestDuration.WithLabelValues(engine, operation).Observe(time.Since(start).Seconds())
}
