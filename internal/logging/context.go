package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type loggerKey struct{}

// ContextWithLogger returns ctx carrying l. A nil logger leaves ctx as is.
func ContextWithLogger(ctx context.Context, l *zap.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the request logger, or zap.L() when ctx has none.
// If ctx carries a valid span the logger is tagged with its trace and span ids.
func FromContext(ctx context.Context) *zap.Logger {
	l := zap.L()
	if ctx == nil {
		return l
	}
	if stored, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && stored != nil {
		l = stored
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
