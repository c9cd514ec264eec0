package detect

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mind-engage/gabarito/internal/metrics"
)

type instrumented struct {
	next    Detector
	engine  string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Instrument wraps d so every call is timed and every failure is logged with
// the detector's stderr.
func Instrument(d Detector, engine string, logger *zap.Logger, m *metrics.Metrics) Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumented{next: d, engine: engine, logger: logger, metrics: m}
}

func (i *instrumented) Detect(ctx context.Context, req Request) (Detection, error) {
	start := time.Now()
	det, err := i.next.Detect(ctx, req)
	elapsed := time.Since(start)
	if err == nil {
		i.metrics.DetectorCall(i.engine, elapsed, "")
		return det, nil
	}
	reason := ReasonOf(err)
	if reason == "" {
		reason = ReasonUnavailable
	}
	i.metrics.DetectorCall(i.engine, elapsed, string(reason))
	fields := []zap.Field{
		zap.String("engine", i.engine),
		zap.String("reason", string(reason)),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	}
	var f *Failure
	if errors.As(err, &f) && f.Stderr != "" {
		fields = append(fields, zap.String("stderr", f.Stderr))
	}
	i.logger.Warn("detection failed", fields...)
	return nil, err
}
