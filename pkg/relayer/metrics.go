package relayer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transfersByState = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainbridge_relayer_transfers_total",
			Help: "Total number of observed transfers by terminal state",
		}, []string{"kind", "source_chain", "state"})
	transfersInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainbridge_relayer_transfers_in_flight",
			Help: "Number of transfers that have not reached a terminal state",
		})
	submitAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainbridge_relayer_submit_attempts_total",
			Help: "Total number of transactions submitted to the destination ledger",
		}, []string{"dest_chain", "outcome"})
	retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainbridge_relayer_retries_total",
			Help: "Total number of retryable failures",
		}, []string{"kind", "source_chain"})
	confirmationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainbridge_relayer_confirmation_seconds",
			Help:    "Time from detection until an event reached its confirmation depth",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"source_chain"})
	orphanedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainbridge_relayer_orphaned_events_total",
			Help: "Total number of events dropped because their log left the canonical ledger",
		}, []string{"source_chain"})
	submitQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainbridge_relayer_submit_queue_depth",
			Help: "Number of transactions waiting for the submit worker",
		}, []string{"dest_chain"})
)
