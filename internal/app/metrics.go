package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srlcanvas_api_requests_total",
			Help: "HTTP requests by method, route and status class",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "srlcanvas_api_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	canvasUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srlcanvas_api_canvas_upserts_total",
			Help: "Canvas upserts by outcome (create, update, invalid, forbidden, error)",
		},
		[]string{"result"},
	)
)
