package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateWritesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowq",
		Name:      "state_writes_total",
		Help:      "The total number of message state writes, by state name.",
	}, []string{"state"})

	stateWriteFailuresCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowq",
		Name:      "state_write_failures_total",
		Help:      "The total number of message state writes rejected by the state store.",
	})
)
