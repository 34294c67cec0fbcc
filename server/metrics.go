package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blog_generator"

// Generation outcomes.
const (
	outcomeOK            = "ok"
	outcomeBadRequest    = "bad_request"
	outcomeNotConfigured = "not_configured"
	outcomeUpstream      = "upstream_error"
	outcomeAborted       = "aborted"
	outcomeClientGone    = "client_gone"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generate requests by outcome",
		},
		[]string{"outcome"},
	)

	fragmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_total",
			Help:      "Text fragments relayed to clients",
		},
	)

	upstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Time from opening the upstream stream to its end",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		},
	)
)
