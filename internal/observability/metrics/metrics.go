package metrics

import "github.com/prometheus/client_golang/prometheus"

// PortalMetrics exposes counters for the booking confirmation flow.
type PortalMetrics struct {
	confirmedTotal    *prometheus.CounterVec
	reconcileAttempts prometheus.Counter
	fallbackReveals   prometheus.Counter
	ndaRequestsTotal  *prometheus.CounterVec
	widgetSignals     *prometheus.CounterVec
}

func NewPortalMetrics(reg prometheus.Registerer) *PortalMetrics {
	m := &PortalMetrics{
		confirmedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "baxterlabs",
			Subsystem: "portal",
			Name:      "booking_confirmed_total",
			Help:      "Bookings reaching a terminal phase, by confirmation source",
		}, []string{"source"}),
		reconcileAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "baxterlabs",
			Subsystem: "portal",
			Name:      "reconcile_attempts_total",
			Help:      "Reconciliation polls issued against the pipeline service",
		}),
		fallbackReveals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "baxterlabs",
			Subsystem: "portal",
			Name:      "fallback_reveals_total",
			Help:      "Times the manual booked control was revealed",
		}),
		ndaRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "baxterlabs",
			Subsystem: "portal",
			Name:      "nda_requests_total",
			Help:      "NDA request outcomes from the gate",
		}, []string{"status"}),
		widgetSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "baxterlabs",
			Subsystem: "portal",
			Name:      "widget_signals_total",
			Help:      "Widget postMessage relays, accepted or ignored",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.confirmedTotal, m.reconcileAttempts, m.fallbackReveals, m.ndaRequestsTotal, m.widgetSignals)
	return m
}

// ObserveConfirmed records a terminal phase. Source is "backend" when the
// authoritative record showed the booking, "self_report" when the optimistic
// path was taken.
func (m *PortalMetrics) ObserveConfirmed(source string) {
	if m == nil {
		return
	}
	m.confirmedTotal.WithLabelValues(source).Inc()
}

func (m *PortalMetrics) ObserveReconcileAttempt() {
	if m == nil {
		return
	}
	m.reconcileAttempts.Inc()
}

func (m *PortalMetrics) ObserveFallbackReveal() {
	if m == nil {
		return
	}
	m.fallbackReveals.Inc()
}

func (m *PortalMetrics) ObserveNDARequest(status string) {
	if m == nil {
		return
	}
	m.ndaRequestsTotal.WithLabelValues(status).Inc()
}

func (m *PortalMetrics) ObserveWidgetSignal(result string) {
	if m == nil {
		return
	}
	m.widgetSignals.WithLabelValues(result).Inc()
}
