// Package metrics exposes the orchestrator loop's Prometheus gauges and
// counters: packets processed, snapshot ticks pushed, and save outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PacketsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meter_packets_processed_total",
		Help: "Total number of capture packets routed to the aggregator core.",
	})

	PacketsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meter_packets_dropped_total",
		Help: "Total number of packets dropped, by reason.",
	}, []string{"reason"})

	SnapshotsPushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meter_snapshots_pushed_total",
		Help: "Total number of UI snapshot ticks emitted.",
	})

	EncountersSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meter_encounters_saved_total",
		Help: "Total number of encounters persisted, by outcome.",
	}, []string{"outcome"})

	ActiveEntities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meter_active_entities",
		Help: "Number of entities currently tracked in the live encounter.",
	})

	SaveLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meter_save_latency_seconds",
		Help:    "Latency of persisting a completed encounter.",
		Buckets: prometheus.DefBuckets,
	})
)
