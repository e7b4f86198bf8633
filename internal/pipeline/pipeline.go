// Package pipeline runs a fixed, ordered list of gates in front of a
// handler.
//
// Each gate inspects the request and returns an Outcome. Continue passes
// the (possibly updated) request to the next gate; any other outcome ends
// the request there and the driver renders it. Gates never call the next
// stage themselves, so the order is exactly the order given to New and a
// terminated request cannot reach later stages.
package pipeline

import (
	"net/http"
	"strings"

	"github.com/keithlinneman/listwebserver/internal/apierr"
)

type Kind int

const (
	KindContinue Kind = iota
	KindRejected
	KindNotFound
	KindErrored
	// KindHandled means the gate wrote the full response itself
	KindHandled
)

func (k Kind) String() string {
	switch k {
	case KindContinue:
		return "continue"
	case KindRejected:
		return "rejected"
	case KindNotFound:
		return "not_found"
	case KindErrored:
		return "errored"
	case KindHandled:
		return "handled"
	}
	return "unknown"
}

// Outcome is the result of one gate. Err is set for Rejected, NotFound and
// Errored.
type Outcome struct {
	Kind Kind
	Err  *apierr.Error
}

func Continue() Outcome { return Outcome{Kind: KindContinue} }

func Handled() Outcome { return Outcome{Kind: KindHandled} }

func Rejected(e *apierr.Error) Outcome { return Outcome{Kind: KindRejected, Err: e} }

func NotFound() Outcome { return Outcome{Kind: KindNotFound, Err: apierr.NotFound()} }

// Errored classifies err with apierr.Normalize.
func Errored(err error) Outcome { return Outcome{Kind: KindErrored, Err: apierr.Normalize(err)} }

func (o Outcome) Terminal() bool { return o.Kind != KindContinue }

// Gate is one pipeline stage. Admit may set response headers on w and may
// return a derived request (for context values). A nil request means r is
// unchanged.
type Gate interface {
	Name() string
	Admit(w http.ResponseWriter, r *http.Request) (*http.Request, Outcome)
}

// GateFunc adapts a function into a Gate.
type GateFunc struct {
	GateName string
	Fn       func(w http.ResponseWriter, r *http.Request) (*http.Request, Outcome)
}

func (g GateFunc) Name() string { return g.GateName }

func (g GateFunc) Admit(w http.ResponseWriter, r *http.Request) (*http.Request, Outcome) {
	return g.Fn(w, r)
}

// Renderer writes a terminal outcome. gate is the name of the gate that
// produced it.
type Renderer func(w http.ResponseWriter, r *http.Request, gate string, out Outcome)

// Observer is told which gate terminated a request. Optional.
type Observer func(gate string, out Outcome)

type Options struct {
	// Render defaults to writing out.Err with apierr.Write
	Render Renderer
	// Observe is called for every terminal outcome, before rendering
	Observe Observer
}

type driver struct {
	gates   []Gate
	next    http.Handler
	render  Renderer
	observe Observer
}

// New returns a handler that runs gates in order and then next.
func New(next http.Handler, opts Options, gates ...Gate) http.Handler {
	d := &driver{next: next, render: opts.Render, observe: opts.Observe}
	for _, g := range gates {
		if g != nil {
			d.gates = append(d.gates, g)
		}
	}
	if d.render == nil {
		d.render = DefaultRender
	}
	return d
}

func (d *driver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w = apierr.Track(w)
	for _, g := range d.gates {
		nr, out := g.Admit(w, r)
		if nr != nil {
			r = nr
		}
		if !out.Terminal() {
			continue
		}
		if d.observe != nil {
			d.observe(g.Name(), out)
		}
		if out.Kind != KindHandled {
			d.render(w, r, g.Name(), out)
		}
		return
	}
	d.next.ServeHTTP(w, r)
}

// DefaultRender writes the outcome's error through apierr.
func DefaultRender(w http.ResponseWriter, r *http.Request, _ string, out Outcome) {
	e := out.Err
	if e == nil {
		e = apierr.Internal(nil)
	}
	apierr.Write(w, r, e)
}

// Prefix applies g only to requests whose path starts with prefix. Other
// requests continue untouched.
func Prefix(prefix string, g Gate) Gate {
	return prefixGate{prefix: prefix, gate: g}
}

type prefixGate struct {
	prefix string
	gate   Gate
}

func (p prefixGate) Name() string { return p.gate.Name() }

func (p prefixGate) Admit(w http.ResponseWriter, r *http.Request) (*http.Request, Outcome) {
	if !matchPrefix(r.URL.Path, p.prefix) {
		return nil, Continue()
	}
	return p.gate.Admit(w, r)
}

// "/api/" also covers the bare "/api"
func matchPrefix(path, prefix string) bool {
	if strings.HasPrefix(path, prefix) {
		return true
	}
	return strings.HasSuffix(prefix, "/") && path == strings.TrimSuffix(prefix, "/")
}
