package metrics

import (
	"context"
	"time"
)

// pollerFunction alias is private and should be used only here
type pollerFunction = func(ctx context.Context) error

// RecordPollerDuration observes every tick of f and, on success, the time of
// the last successful tick so a stalled watcher can be alerted on.
func RecordPollerDuration(typ string, f pollerFunction) pollerFunction {
	return func(ctx context.Context) error {
		startTime := time.Now()
		err := f(ctx)
		pollerDurationHistogram.
			WithLabelValues(typ, outcome(err != nil).String()).
			Observe(time.Since(startTime).Seconds())
		if err == nil {
			pollerLastSuccessGauge.WithLabelValues(typ).Set(float64(time.Now().Unix()))
		}
		return err
	}
}
