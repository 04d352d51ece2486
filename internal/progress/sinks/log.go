// Package sinks provides progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/appdex/catalog-crawler/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is
// useful during development or audits where metrics scraping is not
// set up.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("kind", string(evt.Kind)),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.AppID.Valid() {
			fields = append(fields, zap.Int64("app_id", int64(evt.AppID)))
		}
		if evt.Outcome != "" {
			fields = append(fields, zap.String("outcome", string(evt.Outcome)))
		}
		if evt.Wait > 0 {
			fields = append(fields, zap.Duration("wait", evt.Wait))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
