package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/listwebserver/internal/httpmw"
	"github.com/keithlinneman/listwebserver/internal/log"
	"github.com/keithlinneman/listwebserver/internal/origins"
	"github.com/keithlinneman/listwebserver/internal/pipeline"
	"github.com/keithlinneman/listwebserver/internal/session"
)

type Options struct {
	Logger log.Logger
	Port   int

	// Whitelist and BaseDomain drive the CORS gate. BaseDomain only appears
	// in logs.
	Whitelist  origins.Whitelist
	BaseDomain string
	CORSMaxAge time.Duration

	// Sessions is the session gate; required.
	Sessions *session.Manager

	// Routes mount routed handlers on the router behind the gates.
	Routes []func(chi.Router)

	ClientIPOpts httpmw.ClientIPOptions
	MaxBodyBytes int64 // default 1 MiB

	UseRecoverMW bool
	MetricsMW    func(http.Handler) http.Handler

	// optional hooks, normally metrics
	OnPanic      func()
	OnCORSReject func(origin string)
	OnAuthReject func()
	ObserveGate  pipeline.Observer
}
