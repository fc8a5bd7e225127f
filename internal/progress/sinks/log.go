package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgraph-enricher/internal/progress"
)

// LogSink emits one structured log line per event.
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

// Consume logs each event in the batch. Error stages log at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.Time("ts", evt.TS),
		}
		if evt.RecordID != "" {
			fields = append(fields, zap.String("record_id", evt.RecordID))
		}
		if evt.Host != "" {
			fields = append(fields, zap.String("host", evt.Host))
		}
		if evt.Tier != "" {
			fields = append(fields, zap.String("tier", evt.Tier), zap.Int("pages", evt.Pages))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageUnitError, progress.StageGenerateError, progress.StageRunError:
			s.logger.Warn("progress event", fields...)
		default:
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
