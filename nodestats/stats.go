// Package nodestats exposes the node's operational counters as
// Prometheus metrics (spec SPEC_FULL.md's ambient "observability"
// section). The distilled spec names no metrics endpoint of its own,
// but every ambient concern the teacher and pack carry is kept
// regardless of what a Non-goal excludes, and client_golang is the
// only metrics library present anywhere in the example pack.
package nodestats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatType groups counters by subsystem (spec Glossary has no fixed
// list for this; chosen to mirror the node's own package boundaries so
// a counter's type always names the component that incremented it).
type StatType string

const (
	StatLedger     StatType = "ledger"
	StatBlockProc  StatType = "block_processor"
	StatConsensus  StatType = "consensus"
	StatCementer   StatType = "cementer"
	StatNetwork    StatType = "network"
	StatBootstrap  StatType = "bootstrap"
)

// Direction distinguishes inbound traffic/work from outbound, the one
// axis that applies uniformly across every StatType above.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Registry owns every counter vector the node increments, keyed by
// (StatType, detail, Direction) so a single metric name
// (latticenode_events_total) carries all the cardinality spec's
// ambient stats surface needs instead of one gauge per concern.
type Registry struct {
	events *prometheus.CounterVec
	gauges *prometheus.GaugeVec
}

// NewRegistry builds and registers the node's metric vectors against
// reg (pass prometheus.NewRegistry() for isolation in tests, or
// prometheus.DefaultRegisterer in production).
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		events: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "latticenode",
			Name:      "events_total",
			Help:      "Count of node events by subsystem, detail and direction.",
		}, []string{"type", "detail", "direction"}),
		gauges: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "latticenode",
			Name:      "level",
			Help:      "Current level of a node quantity (queue depth, peer count, etc).",
		}, []string{"type", "detail"}),
	}
	return r
}

// Inc records one occurrence of (typ, detail, dir).
func (r *Registry) Inc(typ StatType, detail string, dir Direction) {
	r.events.WithLabelValues(string(typ), detail, string(dir)).Inc()
}

// Add records n occurrences of (typ, detail, dir).
func (r *Registry) Add(typ StatType, detail string, dir Direction, n float64) {
	r.events.WithLabelValues(string(typ), detail, string(dir)).Add(n)
}

// Set records the current value of a level-style quantity, such as a
// queue length or connected-peer count.
func (r *Registry) Set(typ StatType, detail string, v float64) {
	r.gauges.WithLabelValues(string(typ), detail).Set(v)
}

// Handler returns the HTTP handler that serves this registry's metrics
// in the Prometheus exposition format, for mounting under /metrics.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
