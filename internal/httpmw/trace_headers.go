package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// TraceResponseHeaders echoes the active trace and span ids so a browser
// error report can be matched to the server trace. Empty names default to
// X-Trace-Id and X-Span-Id.
//
// The webapp is served from another origin, so for cross-origin requests the
// ids (and any extra names given in expose, such as the request id header)
// are listed in Access-Control-Expose-Headers or script cannot read them.
func TraceResponseHeaders(traceHeader, spanHeader string, expose ...string) func(http.Handler) http.Handler {
	if traceHeader == "" {
		traceHeader = "X-Trace-Id"
	}
	if spanHeader == "" {
		spanHeader = "X-Span-Id"
	}
	exposed := append([]string{traceHeader, spanHeader}, expose...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if r.Header.Get("Origin") != "" {
				for _, name := range exposed {
					h.Add("Access-Control-Expose-Headers", name)
				}
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				h.Set(traceHeader, sc.TraceID().String())
				h.Set(spanHeader, sc.SpanID().String())
			}
			next.ServeHTTP(w, r)
		})
	}
}
