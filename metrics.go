package junction

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the controller's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	SensorReports *prometheus.CounterVec
	PhasesStarted *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	WaitSeconds   prometheus.Histogram
	ActiveSensors prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		SensorReports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "junction",
				Subsystem: "sensor",
				Name:      "reports_total",
				Help:      "Sensor reports received, by result (accepted, unknown, closed)",
			},
			[]string{"result"},
		),

		PhasesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "junction",
				Subsystem: "phase",
				Name:      "started_total",
				Help:      "Green phases started, by primary sensor",
			},
			[]string{"primary"},
		),

		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "junction",
				Subsystem: "cycle",
				Name:      "transitions_total",
				Help:      "Cycle state machine transitions",
			},
			[]string{"from", "to"},
		),

		WaitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "junction",
				Subsystem: "phase",
				Name:      "primary_wait_seconds",
				Help:      "Time the primary sensor waited before its phase started",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
		),

		ActiveSensors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "junction",
				Subsystem: "sensor",
				Name:      "active",
				Help:      "Number of currently active sensors",
			},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.SensorReports, m.PhasesStarted, m.Transitions, m.WaitSeconds, m.ActiveSensors,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) sensorReport(result string) {
	if m == nil {
		return
	}
	m.SensorReports.WithLabelValues(result).Inc()
}

func (m *Metrics) phaseStarted(primary SensorID, waitedMillis int64) {
	if m == nil {
		return
	}
	m.PhasesStarted.WithLabelValues(string(primary)).Inc()
	if waitedMillis < 0 {
		waitedMillis = 0
	}
	m.WaitSeconds.Observe(float64(waitedMillis) / 1000)
}

func (m *Metrics) transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) activeSensors(n int) {
	if m == nil {
		return
	}
	m.ActiveSensors.Set(float64(n))
}
