// Package alert delivers scan warnings: to the log, to websocket clients,
// or to several sinks at once.
package alert

import (
	"context"
	"errors"
	"log"

	"github.com/lazypower/horizon/internal/horizon"
)

// LogSink writes each warning to a logger.
type LogSink struct {
	Logger *log.Logger // nil uses the standard logger
}

// Send logs every warning. It never fails.
func (s LogSink) Send(_ context.Context, warnings []horizon.Warning) error {
	logf := log.Printf
	if s.Logger != nil {
		logf = s.Logger.Printf
	}
	for _, w := range warnings {
		logf("alert: [%s] %s: %s (%.3f)", w.Severity, w.Type, w.Message, w.Value)
	}
	return nil
}

// Multi sends to every sink and joins their errors.
type Multi []horizon.AlertSink

// Send delivers to each sink in order. A failing sink does not stop the rest.
func (m Multi) Send(ctx context.Context, warnings []horizon.Warning) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, warnings); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
