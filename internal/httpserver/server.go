package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/listwebserver/internal/apierr"
	"github.com/keithlinneman/listwebserver/internal/auth"
	"github.com/keithlinneman/listwebserver/internal/httpmw"
	"github.com/keithlinneman/listwebserver/internal/log"
	"github.com/keithlinneman/listwebserver/internal/pipeline"
	"github.com/keithlinneman/listwebserver/internal/xerrors"
)

const defaultMaxBody = 1 << 20

// NewHandler builds the public handler: outer middleware, then the gates
// (cors, security headers, session, auth on /api/), then the chi router.
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts *Options) http.Handler {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}

	// chi router
	r := chi.NewRouter()

	// Compress JSON API responses
	r.Use(middleware.Compress(5, "application/json"))

	for _, mount := range opts.Routes {
		if mount != nil {
			mount(r)
		}
	}

	// unmatched paths and methods share one answer so the route table is not
	// probeable
	r.NotFound(apierr.NotFoundHandler())
	r.MethodNotAllowed(apierr.NotFoundHandler())

	gates := []pipeline.Gate{
		httpmw.NewCORSGate(opts.Whitelist, httpmw.CORSOptions{
			BaseDomain: opts.BaseDomain,
			MaxAge:     opts.CORSMaxAge,
			OnReject:   opts.OnCORSReject,
		}),
		httpmw.SecurityHeaderGate(),
	}
	if opts.Sessions != nil {
		gates = append(gates, opts.Sessions)
	}
	gates = append(gates, pipeline.Prefix("/api/", auth.Barrier{OnReject: opts.OnAuthReject}))

	h := pipeline.New(r, pipeline.Options{Observe: opts.ObserveGate}, gates...)

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	var recoverMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(L, opts.OnPanic)
	}

	// outermost first
	return httpmw.Chain(h,
		// Security headers outermost to ensure they are served on every response
		httpmw.SecurityHeaders,
		// Request ID before Recover so panic logs carry it
		httpmw.RequestID("X-Request-Id"),
		recoverMW,
		// Client IP before anything that logs or limits by address
		httpmw.ClientIPWithOptions(opts.ClientIPOpts),
		tracing,
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id", "X-Request-Id"),
		opts.MetricsMW,
		// Request-scoped logging (inner so it sees trace_id, etc)
		httpmw.WithLogger(L),
		httpmw.AccessLog(),
		httpmw.AnnotateHTTPRoute,
		httpmw.MaxBody(maxBody),
	)
}

// tracing starts the server span. Preflights are not traced.
func tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(
		next,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.Method != http.MethodOptions
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute will rename the span later to the final route pattern
			return r.Method + " " + r.URL.Path
		}),
		// WithPublicEndpointFn is the replacement for WithPublicEndpoint()
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)
}

// Server timeout defaults
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen addr=%s", addr)
	}

	go func() {
		L.Info(ctx, "http server listening", "addr", addr, "webapp_domain", opts.BaseDomain)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			L.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
