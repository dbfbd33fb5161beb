// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fieldgate"

var (
	// ReportsTotal counts reports handed to the registry, by source (scan, gsm).
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Total number of device reports received",
		},
		[]string{"source"},
	)

	// AdmissionsTotal counts auto-discovery admissions by result (admitted, exhausted).
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Total number of auto-discovery admission attempts",
		},
		[]string{"result"},
	)

	// Devices is the number of devices in the registry.
	Devices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Number of registered devices",
		},
	)

	// BusRequestsTotal counts bus requests answered, by function code and result.
	BusRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_requests_total",
			Help:      "Total number of bus requests handled",
		},
		[]string{"function", "result"},
	)

	// BusOverflowsTotal counts receive buffer overflows per listener.
	BusOverflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_overflows_total",
			Help:      "Total number of bus receive buffer overflows",
		},
		[]string{"listener"},
	)

	// BusBansTotal counts peers banned per listener.
	BusBansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_bans_total",
			Help:      "Total number of bus peers banned",
		},
		[]string{"listener"},
	)

	// WSBroadcastsTotal counts websocket broadcasts by message type.
	WSBroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_broadcasts_total",
			Help:      "Total number of websocket broadcasts",
		},
		[]string{"type"},
	)

	// WSSubscribers is the number of connected websocket subscribers.
	WSSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_subscribers",
			Help:      "Number of connected websocket subscribers",
		},
	)

	// WritesTotal counts coalesced persistence writes by writer and result.
	WritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Total number of coalesced persistence writes",
		},
		[]string{"writer", "result"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Result labels shared by several counters.
const (
	ResultOK    = "ok"
	ResultError = "error"
)
