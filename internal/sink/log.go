package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/hamed0406/reachmon/internal/domain"
)

// Log writes every record to a zap logger. Results go out at debug level,
// transitions at info, or warn when a target goes down.
type Log struct {
	Logger *zap.Logger
}

func (l Log) RecordResult(_ context.Context, r domain.ProbeResult) error {
	fields := []zap.Field{
		zap.String("target_id", string(r.TargetID)),
		zap.String("host", r.Host),
		zap.String("method", string(r.Method)),
		zap.Bool("success", r.Success),
	}
	if r.Port > 0 {
		fields = append(fields, zap.Int("port", r.Port))
	}
	if r.Success {
		fields = append(fields, zap.Duration("latency", r.Latency))
	} else {
		fields = append(fields, zap.String("reason", string(r.Reason)), zap.String("detail", r.Detail))
	}
	l.Logger.Debug("probe_result", fields...)
	return nil
}

func (l Log) RecordTransition(_ context.Context, e domain.TransitionEvent) error {
	fields := []zap.Field{
		zap.String("target_id", string(e.TargetID)),
		zap.String("host", e.Host),
		zap.String("from", string(e.From)),
		zap.String("to", string(e.To)),
		zap.Time("at", e.At),
	}
	if e.To == domain.StatusDown {
		l.Logger.Warn("target_down", fields...)
		return nil
	}
	l.Logger.Info("target_status_changed", fields...)
	return nil
}
