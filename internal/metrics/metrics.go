// Package metrics exposes registry activity as Prometheus collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ekisa-team/beam/model"
)

const namespace = "beam"

// Failure reasons reported by beam_model_failures_total.
const (
	ReasonUnknown       = "unknown_model"
	ReasonInvalid       = "invalid_model"
	ReasonInstantiation = "instantiation"
	ReasonOther         = "other"
)

// Metrics implements model.Observer on top of Prometheus collectors.
type Metrics struct {
	registerer   prometheus.Registerer
	created      *prometheus.CounterVec
	failures     *prometheus.CounterVec
	hookDuration *prometheus.HistogramVec
	hookErrors   *prometheus.CounterVec
}

var _ model.Observer = (*Metrics)(nil)

// New registers the registry collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registerer: reg,
		created: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "models_created_total",
			Help:      "Models created, by origin (eager or lazy).",
		}, []string{"origin"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_failures_total",
			Help:      "Model creations that failed, by reason.",
		}, []string{"reason"}),
		hookDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_hook_duration_seconds",
			Help:      "Duration of model lifecycle hooks.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"hook"}),
		hookErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_hook_errors_total",
			Help:      "Model lifecycle hooks that returned an error or panicked.",
		}, []string{"hook"}),
	}
}

// WatchBackground exports the background queue length as a gauge.
func (m *Metrics) WatchBackground(pending func() int) {
	promauto.With(m.registerer).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "background_pending",
		Help:      "Background tasks queued and not started yet.",
	}, func() float64 {
		return float64(pending())
	})
}

// ModelCreated implements model.Observer.
func (m *Metrics) ModelCreated(_ model.Key, origin model.Origin) {
	m.created.WithLabelValues(string(origin)).Inc()
}

// ModelFailed implements model.Observer.
func (m *Metrics) ModelFailed(_ model.Key, err error) {
	m.failures.WithLabelValues(Reason(err)).Inc()
}

// HookFinished implements model.Observer.
func (m *Metrics) HookFinished(_ model.Key, hook model.Hook, elapsed time.Duration, err error) {
	m.hookDuration.WithLabelValues(string(hook)).Observe(elapsed.Seconds())
	if err != nil {
		m.hookErrors.WithLabelValues(string(hook)).Inc()
	}
}

// Reason classifies a creation error into a failure label.
func Reason(err error) string {
	switch {
	case errors.Is(err, model.ErrUnknownModel):
		return ReasonUnknown
	case errors.Is(err, model.ErrInstantiation):
		return ReasonInstantiation
	case errors.Is(err, model.ErrInvalidModel):
		return ReasonInvalid
	default:
		return ReasonOther
	}
}
