package objectstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resultFetchHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowq",
		Name:      "result_fetch_duration_seconds",
		Help:      "Time spent in a single result store fetch, including blocking waits.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
	}, []string{"outcome"})

	resultTimeoutCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowq",
		Name:      "result_timeouts_total",
		Help:      "The total number of blocking result fetches that reached their deadline.",
	})
)
