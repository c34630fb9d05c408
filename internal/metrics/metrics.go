// Package metrics exports the status record as Prometheus metrics.
package metrics

import (
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sweeney/aquarium-controller/internal/status"
)

const namespace = "aquarium"

// Exporter is a status.Sink that mirrors every field into a gauge.
//
//	numeric fields  -> aquarium_reading{field}    (NaN while the sensor fails)
//	bool fields     -> aquarium_flag{field}       (1 or 0)
//	string fields   -> aquarium_state{field,value} (1 for the current value)
type Exporter struct {
	readings *prometheus.GaugeVec
	flags    *prometheus.GaugeVec
	states   *prometheus.GaugeVec
	failures *prometheus.CounterVec
	updates  *prometheus.CounterVec
	mqtt     prometheus.Gauge

	mu      sync.Mutex
	current map[string]string // last value per string field
}

// New creates an Exporter and registers its collectors, plus the Go and
// process collectors, with reg.
func New(reg prometheus.Registerer) (*Exporter, error) {
	e := &Exporter{
		readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "reading",
			Help: "Latest numeric status value.",
		}, []string{"field"}),
		flags: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "flag",
			Help: "Boolean status value, 1 when true.",
		}, []string{"field"}),
		states: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "state",
			Help: "Textual status value, 1 for the current value.",
		}, []string{"field", "value"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sensor_read_failures_total",
			Help: "Readings reported as unavailable.",
		}, []string{"field"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "status_updates_total",
			Help: "Partial status updates merged, by source.",
		}, []string{"source"}),
		mqtt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "mqtt_connected",
			Help: "1 while the MQTT broker connection is up.",
		}),
		current: make(map[string]string),
	}

	for _, c := range []prometheus.Collector{
		e.readings, e.flags, e.states, e.failures, e.updates, e.mqtt,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// StatusUpdated implements status.Sink.
func (e *Exporter) StatusUpdated(u status.Update, snap status.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.updates.WithLabelValues(u.Source).Inc()
	e.mqtt.Set(boolGauge(snap.MQTTConnected))

	for _, f := range u.Fields {
		switch v := f.Value.(type) {
		case bool:
			e.flags.WithLabelValues(f.Key).Set(boolGauge(v))
		case string:
			if prev, ok := e.current[f.Key]; ok && prev != v {
				e.states.DeleteLabelValues(f.Key, prev)
			}
			e.current[f.Key] = v
			e.states.WithLabelValues(f.Key, v).Set(1)
		default:
			n, ok := number(v)
			if !ok {
				continue
			}
			if math.IsNaN(n) {
				e.failures.WithLabelValues(f.Key).Inc()
			}
			e.readings.WithLabelValues(f.Key).Set(n)
		}
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
