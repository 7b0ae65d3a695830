// Package metrics exposes the Prometheus collectors used across the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RelaySendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_relay_sends_total",
		Help: "Total relay delivery attempts by outcome.",
	}, []string{"status"})

	RelaySendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "portal_relay_send_duration_seconds",
		Help:    "Latency of webhook delivery requests.",
		Buckets: prometheus.DefBuckets,
	})

	QuotaDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_quota_denials_total",
		Help: "Send attempts denied by the quota engine, by reason.",
	}, []string{"reason"})

	PurchasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_limit_purchases_total",
		Help: "Completed daily-limit purchases.",
	})

	SSEClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portal_sse_clients",
		Help: "Currently connected event-stream clients.",
	})
)
