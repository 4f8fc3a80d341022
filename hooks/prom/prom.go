// Package promhooks counts frontend events with Prometheus counters.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/codecache"
)

// Hooks holds the counters. Labels never carry identifiers or tags, only
// the operation and the kind of key.
type Hooks struct {
	invalidKey        *prometheus.CounterVec
	invalidData       prometheus.Counter
	backendErrors     *prometheus.CounterVec
	malformedEnvelope prometheus.Counter
}

var _ codecache.Hooks = (*Hooks)(nil)

// New creates the counters under namespace and registers them with reg.
// A nil reg skips registration.
func New(namespace string, reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		invalidKey: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codecache",
			Name:      "invalid_keys_total",
			Help:      "Identifiers and tags rejected before reaching the backend.",
		}, []string{"op", "kind"}),
		invalidData: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codecache",
			Name:      "invalid_data_total",
			Help:      "Set calls rejected because the source was not valid UTF-8.",
		}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codecache",
			Name:      "backend_errors_total",
			Help:      "Errors returned by the backend, per operation.",
		}, []string{"op"}),
		malformedEnvelope: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codecache",
			Name:      "malformed_envelopes_total",
			Help:      "Payloads read without the envelope framing.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{h.invalidKey, h.invalidData, h.backendErrors, h.malformedEnvelope} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

func (h *Hooks) InvalidKey(op, kind, _ string) { h.invalidKey.WithLabelValues(op, kind).Inc() }
func (h *Hooks) InvalidData(string)            { h.invalidData.Inc() }
func (h *Hooks) BackendError(op, _ string, _ error) {
	h.backendErrors.WithLabelValues(op).Inc()
}
func (h *Hooks) MalformedEnvelope(string) { h.malformedEnvelope.Inc() }
