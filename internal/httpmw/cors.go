package httpmw

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keithlinneman/listwebserver/internal/apierr"
	"github.com/keithlinneman/listwebserver/internal/origins"
	"github.com/keithlinneman/listwebserver/internal/pipeline"
)

// methods advertised on preflight, same as the express cors defaults the
// browser app was built against
var defaultCORSMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPut,
	http.MethodPatch,
	http.MethodPost,
	http.MethodDelete,
}

type CORSOptions struct {
	// BaseDomain is the configured webapp domain, only used in rejection details
	BaseDomain string
	Methods    []string
	// MaxAge is sent on successful preflight when > 0
	MaxAge time.Duration
	// OnReject is called with the offending origin, used for metrics
	OnReject func(origin string)
}

// CORSGate admits requests whose Origin is absent or whitelisted and
// reflects the accepted origin with credentials allowed. Anything else is
// rejected before later gates run.
type CORSGate struct {
	whitelist origins.Whitelist
	base      string
	methods   string
	maxAge    string
	onReject  func(string)
}

func NewCORSGate(wl origins.Whitelist, opts CORSOptions) *CORSGate {
	methods := opts.Methods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	g := &CORSGate{
		whitelist: wl,
		base:      opts.BaseDomain,
		methods:   strings.Join(methods, ","),
		onReject:  opts.OnReject,
	}
	if opts.MaxAge > 0 {
		g.maxAge = strconv.Itoa(int(opts.MaxAge / time.Second))
	}
	return g
}

func (g *CORSGate) Name() string { return "cors" }

func (g *CORSGate) Admit(w http.ResponseWriter, r *http.Request) (*http.Request, pipeline.Outcome) {
	h := w.Header()
	// the response depends on Origin whether or not one was sent
	h.Add("Vary", "Origin")

	origin := r.Header.Get("Origin")
	if origin == "" {
		// same-origin or non-browser caller
		return nil, pipeline.Continue()
	}

	if !g.whitelist.Contains(origin) {
		if g.onReject != nil {
			g.onReject(origin)
		}
		return nil, pipeline.Rejected(apierr.CorsMismatch(origin, g.base))
	}

	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")

	if !isPreflight(r) {
		return nil, pipeline.Continue()
	}

	h.Set("Access-Control-Allow-Methods", g.methods)
	if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
		h.Set("Access-Control-Allow-Headers", reqHeaders)
		h.Add("Vary", "Access-Control-Request-Headers")
	}
	if g.maxAge != "" {
		h.Set("Access-Control-Max-Age", g.maxAge)
	}
	h.Set("Content-Length", "0")
	w.WriteHeader(http.StatusNoContent)
	return nil, pipeline.Handled()
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}
