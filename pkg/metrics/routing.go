package metrics

import "github.com/prometheus/client_golang/prometheus"

// RoutingMetrics counts basket routing outcomes.
type RoutingMetrics struct {
	transitions *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	agingMoved  *prometheus.CounterVec
}

// NewRoutingMetrics registers the routing counters on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewRoutingMetrics(reg prometheus.Registerer) *RoutingMetrics {
	if reg == nil {
		return &RoutingMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "basket_transitions_total",
		Help: "Committed basket transitions by transition type.",
	}, []string{"type"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "basket_routing_skipped_total",
		Help: "Routing events that were skipped, by reason.",
	}, []string{"reason"})
	agingMoved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "basket_aging_moved_total",
		Help: "Customers moved (or reported in dry-run) by the aging sweep.",
	}, []string{"mode"})
	reg.MustRegister(transitions, skipped, agingMoved)
	return &RoutingMetrics{
		transitions: transitions,
		skipped:     skipped,
		agingMoved:  agingMoved,
	}
}

// IncTransition counts one committed transition.
func (m *RoutingMetrics) IncTransition(transitionType string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(transitionType)).Inc()
}

// IncSkipped counts one skipped routing event.
func (m *RoutingMetrics) IncSkipped(reason string) {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncAgingMoved counts one aging move. mode is "live" or "dry_run".
func (m *RoutingMetrics) IncAgingMoved(mode string) {
	if m == nil || m.agingMoved == nil {
		return
	}
	m.agingMoved.WithLabelValues(normalizeLabel(mode)).Inc()
}
