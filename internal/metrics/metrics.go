// Package metrics holds the Prometheus collectors for the presence daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "geosentinel"

// Metrics provides observability for the coordinator. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	// Raw signals by kind (region_entered, region_exited, visit, ...)
	RawSignals *prometheus.CounterVec

	// Confirmed transitions by type (entry, exit)
	Transitions *prometheus.CounterVec

	// Pending phases cancelled by a reversal, by direction (dwell, exit)
	Cancellations *prometheus.CounterVec

	// Notification deliveries by result (sent, failed)
	Notifications *prometheus.CounterVec

	// Raw signals discarded because the geofence was snoozed
	SnoozedDrops prometheus.Counter

	MonitoredRegions prometheus.Gauge
	ArmedTimers      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RawSignals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_signals_total",
			Help:      "Raw signals received from the location subsystem by kind",
		}, []string{"kind"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Confirmed presence transitions by type",
		}, []string{"type"}),

		Cancellations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Pending phases cancelled before confirmation by direction",
		}, []string{"direction"}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by result",
		}, []string{"result"}),

		SnoozedDrops: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snoozed_drops_total",
			Help:      "Raw signals discarded while the geofence was snoozed",
		}),

		MonitoredRegions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitored_regions",
			Help:      "Regions currently monitored by the location subsystem",
		}),

		ArmedTimers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "armed_timers",
			Help:      "Dwell and exit timers currently armed",
		}),
	}
}

// RawSignal counts a raw signal of the given kind.
func (m *Metrics) RawSignal(kind string) {
	if m != nil {
		m.RawSignals.WithLabelValues(kind).Inc()
	}
}

// Transition counts a confirmed transition.
func (m *Metrics) Transition(eventType string) {
	if m != nil {
		m.Transitions.WithLabelValues(eventType).Inc()
	}
}

// Cancelled adds n cancellations for direction.
func (m *Metrics) Cancelled(direction string, n int) {
	if m != nil && n > 0 {
		m.Cancellations.WithLabelValues(direction).Add(float64(n))
	}
}

// Notified records a notification delivery result.
func (m *Metrics) Notified(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Notifications.WithLabelValues("failed").Inc()
		return
	}
	m.Notifications.WithLabelValues("sent").Inc()
}

// Snoozed adds n snoozed drops.
func (m *Metrics) Snoozed(n int) {
	if m != nil && n > 0 {
		m.SnoozedDrops.Add(float64(n))
	}
}

// SetMonitored sets the monitored regions gauge.
func (m *Metrics) SetMonitored(n int) {
	if m != nil {
		m.MonitoredRegions.Set(float64(n))
	}
}

// SetArmed sets the armed timers gauge.
func (m *Metrics) SetArmed(n int) {
	if m != nil {
		m.ArmedTimers.Set(float64(n))
	}
}
