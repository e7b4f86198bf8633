package apierr

import (
	"encoding/json"
	"net/http"

	"github.com/keithlinneman/listwebserver/internal/log"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// commitWriter records whether a response has been started so a later
// failure does not produce a second one
type commitWriter struct {
	http.ResponseWriter
	committed bool
}

func (c *commitWriter) WriteHeader(code int) {
	c.committed = true
	c.ResponseWriter.WriteHeader(code)
}

func (c *commitWriter) Write(b []byte) (int, error) {
	c.committed = true
	return c.ResponseWriter.Write(b)
}

func (c *commitWriter) Flush() {
	c.committed = true
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (c *commitWriter) Committed() bool { return c.committed }

func (c *commitWriter) Unwrap() http.ResponseWriter { return c.ResponseWriter }

type committer interface{ Committed() bool }

// Track wraps w so Committed can tell whether anything was sent. Wrapping an
// already tracked writer returns it unchanged.
func Track(w http.ResponseWriter) http.ResponseWriter {
	if _, ok := w.(committer); ok {
		return w
	}
	return &commitWriter{ResponseWriter: w}
}

// Committed reports whether a response has been started on a writer returned
// by Track, or on anything wrapping one via Unwrap.
func Committed(w http.ResponseWriter) bool {
	for w != nil {
		if c, ok := w.(committer); ok {
			return c.Committed()
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return false
		}
		w = u.Unwrap()
	}
	return false
}

// Write normalizes err, logs it in full with the request-scoped logger and
// sends the sanitized form. If the response was already started it only
// logs.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	ctx := r.Context()
	L := log.FromContext(ctx)
	e := Normalize(err)

	if Committed(w) {
		L.Error(ctx, err, "error after response committed", "error_kind", e.Kind)
		return
	}

	kv := []any{
		"error_kind", e.Kind,
		"http.response.status_code", e.Status,
	}
	if e.Detail != "" {
		kv = append(kv, "detail", e.Detail)
	}
	switch {
	case e.Status >= 500:
		L.Error(ctx, err, "request failed", kv...)
	case e.Err != nil:
		L.Warn(ctx, "request rejected", append(kv, "err", e.Err.Error())...)
	default:
		L.Warn(ctx, "request rejected", kv...)
	}

	Respond(w, e)
}

// Respond sends the sanitized form of e without logging. It reports false
// and sends nothing when the response was already started.
func Respond(w http.ResponseWriter, e *Error) bool {
	if e == nil || Committed(w) {
		return false
	}
	writeJSON(w, e.Status, Body{Error: e.Message, Status: e.Status})
	return true
}

func writeJSON(w http.ResponseWriter, status int, body Body) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Del("Content-Length")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// HandlerFunc is a routed handler that reports failure by returning an
// error instead of writing it.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tw := Track(w)
	if err := f(tw, r); err != nil {
		Write(tw, r, err)
	}
}

// NotFoundHandler answers unmatched routes and methods with the generic
// not-found response.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		Write(w, r, NotFound())
	}
}
