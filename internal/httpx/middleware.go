package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agrostore/order-core/internal/logging"
	"github.com/agrostore/order-core/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Observability injects a request-scoped logger, echoes X-Request-ID and
// records one log line plus HTTP metrics per request. Runs after
// middleware.RequestID.
func Observability(base *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	if base == nil {
		base = zap.NewNop()
	}
	prop := otel.GetTextMapPropagator()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			rid := middleware.GetReqID(ctx)
			if rid != "" {
				w.Header().Set(middleware.RequestIDHeader, rid)
			}
			ctx = logging.ContextWithLogger(ctx, base.With(zap.String("request_id", rid)))
			log := logging.FromContext(ctx) // + trace_id bila ada traceparent

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			d := time.Since(start)
			m.HTTPRequest(r.Method, route, strconv.Itoa(status), d)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("duration", d))
		})
	}
}
