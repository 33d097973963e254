package httpmiddleware

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type routeInfoKey struct{}

type routeInfo struct {
	pattern string
}

func withRouteInfo(ctx context.Context, info *routeInfo) context.Context {
	return context.WithValue(ctx, routeInfoKey{}, info)
}

// Route tags a handler with its mux pattern. The pattern becomes the span
// name, the http.route metric label and the access log route field.
func Route(pattern string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if info, ok := ctx.Value(routeInfoKey{}).(*routeInfo); ok {
			info.pattern = pattern
		}
		attr := attribute.String("http.route", pattern)
		if labeler, ok := otelhttp.LabelerFromContext(ctx); ok {
			labeler.Add(attr)
		}
		span := trace.SpanFromContext(ctx)
		span.SetName(pattern)
		span.SetAttributes(attr)

		h.ServeHTTP(w, r)
	})
}
