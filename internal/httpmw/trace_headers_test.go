package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func validSpanContext() context.Context {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestTraceResponseHeaders(t *testing.T) {
	h := TraceResponseHeaders("", "")(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody).WithContext(validSpanContext()))
	if got := rec.Header().Get("X-Trace-Id"); got != "0102030405060708090a0b0c0d0e0f10" {
		t.Fatalf("X-Trace-Id = %q", got)
	}
	if got := rec.Header().Get("X-Span-Id"); got != "0102030405060708" {
		t.Fatalf("X-Span-Id = %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Header().Get("X-Trace-Id") != "" {
		t.Fatal("trace header set without a span")
	}
}

func TestTraceResponseHeaders_ExposedCrossOrigin(t *testing.T) {
	h := TraceResponseHeaders("", "", "X-Request-Id")(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Origin", "http://list.local")
	h.ServeHTTP(rec, req)
	got := rec.Header().Values("Access-Control-Expose-Headers")
	want := []string{"X-Trace-Id", "X-Span-Id", "X-Request-Id"}
	if len(got) != len(want) {
		t.Fatalf("expose = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expose = %v, want %v", got, want)
		}
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if v := rec.Header().Values("Access-Control-Expose-Headers"); len(v) != 0 {
		t.Fatalf("expose headers on same-origin request: %v", v)
	}
}

func TestAnnotateHTTPRoute_RenamesSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := chi.NewRouter()
	r.Get("/api/streams/{id}", func(http.ResponseWriter, *http.Request) {})

	ctx, span := tp.Tracer("test").Start(context.Background(), "initial")
	req := httptest.NewRequest(http.MethodGet, "/api/streams/7", http.NoBody).WithContext(ctx)
	AnnotateHTTPRoute(r).ServeHTTP(httptest.NewRecorder(), req)
	span.End()

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d", len(ended))
	}
	if got := ended[0].Name(); got != "GET /api/streams/{id}" {
		t.Fatalf("span name = %q", got)
	}
}
