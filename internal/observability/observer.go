package observability

import (
	"errors"

	"github.com/rafaeljc/mimir/internal/ruleengine"
)

// MetricsObserver records engine resolution events as Prometheus metrics.
type MetricsObserver struct{}

// OnResolve implements ruleengine.Observer.
func (MetricsObserver) OnResolve(ev ruleengine.ResolveEvent) {
	if errors.Is(ev.Err, ruleengine.ErrRecursionLimit) {
		RecursionLimitsTotal.Inc()
		return
	}
	if errors.Is(ev.Err, ruleengine.ErrTypeMismatch) {
		TypeMismatchesTotal.Inc()
	}
	ResolutionsTotal.WithLabelValues(ev.Source.String()).Inc()
	ResolutionDepth.Observe(float64(ev.Depth))
}
