// Package metrics exposes the engine's prometheus collectors: events
// ingested per kind, cursor slot per source, URI queue depth/drops, and
// verifier per-kind FINALIZED/ORPHANED counts. Instrumentation of the core
// engine is ambient observability, not one of the excluded outer-surface
// features.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/R3E-Network/agentindexer/internal/store"
	"github.com/R3E-Network/agentindexer/internal/uriqueue"
	"github.com/R3E-Network/agentindexer/internal/verify"
)

// Registry bundles the engine's own collectors. Construct with New and
// register through Registry.MustRegister, which also adds the worker- and
// queue-backed collectors. Nothing in this repository increments
// EventsIngested or sets CursorSlot, so neither exports any series.
type Registry struct {
	EventsIngested *prometheus.CounterVec
	CursorSlot     *prometheus.GaugeVec
}

func New() *Registry {
	return &Registry{
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentindexer",
			Name:      "events_ingested_total",
			Help:      "Number of events committed by the ingestion loop, by kind.",
		}, []string{"kind"}),
		CursorSlot: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentindexer",
			Name:      "cursor_slot",
			Help:      "Last committed slot, by source.",
		}, []string{"source"}),
	}
}

// MustRegister registers every collector owned by r, plus the worker- and
// queue-backed collectors built from the running engine's components.
func (r *Registry) MustRegister(reg prometheus.Registerer, w *verify.Worker, q *uriqueue.Queue) {
	reg.MustRegister(r.EventsIngested, r.CursorSlot)
	reg.MustRegister(newVerifyCollector(w))
	reg.MustRegister(newQueueCollector(q))
}

// verifyCollector adapts verify.Worker.Stats() into prometheus metrics
// without requiring the worker to track atomics under its own counters
// twice.
type verifyCollector struct {
	w             *verify.Worker
	ticksDesc     *prometheus.Desc
	finalizedDesc *prometheus.Desc
	orphanedDesc  *prometheus.Desc
}

func newVerifyCollector(w *verify.Worker) *verifyCollector {
	return &verifyCollector{
		w:             w,
		ticksDesc:     prometheus.NewDesc("agentindexer_verify_ticks_total", "Total verification ticks run.", nil, nil),
		finalizedDesc: prometheus.NewDesc("agentindexer_verify_finalized_total", "Rows transitioned to FINALIZED, by kind.", []string{"kind"}, nil),
		orphanedDesc:  prometheus.NewDesc("agentindexer_verify_orphaned_total", "Rows transitioned to ORPHANED, by kind.", []string{"kind"}, nil),
	}
}

func (c *verifyCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ticksDesc
	ch <- c.finalizedDesc
	ch <- c.orphanedDesc
}

func (c *verifyCollector) Collect(ch chan<- prometheus.Metric) {
	if c.w == nil {
		return
	}
	stats := c.w.Stats()
	ch <- prometheus.MustNewConstMetric(c.ticksDesc, prometheus.CounterValue, float64(stats.Ticks))
	for _, kind := range []store.PendingKind{
		store.PendingAgent, store.PendingRegistry, store.PendingMetadata,
		store.PendingURIMetadata, store.PendingValidation, store.PendingFeedback,
		store.PendingFeedbackResponse,
	} {
		ch <- prometheus.MustNewConstMetric(c.finalizedDesc, prometheus.CounterValue, float64(stats.Finalized[kind]), string(kind))
		ch <- prometheus.MustNewConstMetric(c.orphanedDesc, prometheus.CounterValue, float64(stats.Orphaned[kind]), string(kind))
	}
}

// queueCollector adapts uriqueue.Queue.Stats() into prometheus metrics.
type queueCollector struct {
	q         *uriqueue.Queue
	depthDesc *prometheus.Desc
	dropDesc  *prometheus.Desc
}

func newQueueCollector(q *uriqueue.Queue) *queueCollector {
	return &queueCollector{
		q:         q,
		depthDesc: prometheus.NewDesc("agentindexer_uri_queue_depth", "Current number of queued URI digest jobs.", nil, nil),
		dropDesc:  prometheus.NewDesc("agentindexer_uri_queue_dropped_total", "Total URI digest jobs dropped for a full queue.", nil, nil),
	}
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depthDesc
	ch <- c.dropDesc
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	if c.q == nil {
		return
	}
	stats := c.q.Stats()
	ch <- prometheus.MustNewConstMetric(c.depthDesc, prometheus.GaugeValue, float64(stats.Depth))
	ch <- prometheus.MustNewConstMetric(c.dropDesc, prometheus.CounterValue, float64(stats.Dropped))
}
