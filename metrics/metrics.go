package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"remindbot/models"
)

const namespace = "remindbot"

// Metrics tracks the scheduler, delivery and store. All methods are safe on a nil receiver.
type Metrics struct {
	attempts        *prometheus.CounterVec
	processed       *prometheus.CounterVec
	skipped         prometheus.Counter
	scanDuration    prometheus.Histogram
	stored          prometheus.Gauge
	settingsReloads *prometheus.CounterVec
	persistErrors   prometheus.Counter
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Delivery attempts by destination and result",
		}, []string{"destination", "result"}),
		processed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "reminders_processed_total",
			Help:      "Reminders delivered and removed, split by live or missed",
		}, []string{"kind"}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "malformed_reminders_skipped_total",
			Help:      "Stored reminders skipped during due scans because they failed validation",
		}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Time spent scanning and delivering per tick",
			Buckets:   prometheus.DefBuckets,
		}),
		stored: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "reminders",
			Help:      "Reminders currently persisted",
		}),
		settingsReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settings",
			Name:      "reloads_total",
			Help:      "Settings file reloads by result",
		}, []string{"result"}),
		persistErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "persist_errors_total",
			Help:      "Failed writes of the reminder data file",
		}),
	}
}

// RecordOutcome counts each attempt of a delivery outcome.
func (m *Metrics) RecordOutcome(o models.DeliveryOutcome) {
	if m == nil {
		return
	}
	for _, a := range o.Attempts {
		result := "ok"
		if !a.OK() {
			result = string(a.Failure)
		}
		m.attempts.WithLabelValues(string(a.Destination), result).Inc()
	}
	kind := "live"
	if o.Missed {
		kind = "missed"
	}
	m.processed.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordSkipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(d.Seconds())
}

func (m *Metrics) SetStored(n int) {
	if m == nil {
		return
	}
	m.stored.Set(float64(n))
}

func (m *Metrics) RecordSettingsReload(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.settingsReloads.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordPersistError() {
	if m == nil {
		return
	}
	m.persistErrors.Inc()
}
