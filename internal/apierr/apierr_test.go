package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/keithlinneman/listwebserver/internal/log"
)

// spyLogger records Warn and Error calls
type spyLogger struct {
	log.Logger
	mu     sync.Mutex
	errors []error
	msgs   []string
}

func newSpy() *spyLogger { return &spyLogger{Logger: log.Nop()} }

func (s *spyLogger) With(...any) log.Logger { return s }

func (s *spyLogger) Warn(_ context.Context, msg string, _ ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *spyLogger) Error(_ context.Context, err error, msg string, _ ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
	s.msgs = append(s.msgs, msg)
}

func requestWith(l log.Logger) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/thing", http.NoBody)
	return r.WithContext(log.WithContext(r.Context(), l))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) Body {
	t.Helper()
	var b Body
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return b
}

func TestNormalize(t *testing.T) {
	cause := errors.New("pq: connection refused")

	tests := []struct {
		name       string
		err        error
		wantKind   Kind
		wantStatus int
		wantMsg    string
	}{
		{"plain error is internal", cause, KindInternal, 500, "internal server error"},
		{"api error passes through", New(http.StatusConflict, "stream already exists"), KindAPI, 409, "stream already exists"},
		{"wrapped api error is found", fmt.Errorf("handler: %w", Wrap(cause, 422, "bad pcap")), KindAPI, 422, "bad pcap"},
		{"invalid status becomes 500", New(200, "ok?"), KindAPI, 500, "ok?"},
		{"empty message uses status text", New(http.StatusTeapot, ""), KindAPI, 418, "I'm a teapot"},
		{"not found", NotFound(), KindNotFound, 404, "resource not found"},
		{"unauthenticated", Unauthenticated(), KindUnauthenticated, 401, "authentication required"},
		{"cors", CorsMismatch("http://evil.example", "http://list.local"), KindCorsMismatch, 403, "origin not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.err)
			if got.Kind != tt.wantKind || got.Status != tt.wantStatus || got.Message != tt.wantMsg {
				t.Fatalf("Normalize = {%s %d %q}, want {%s %d %q}",
					got.Kind, got.Status, got.Message, tt.wantKind, tt.wantStatus, tt.wantMsg)
			}
		})
	}

	if Normalize(nil) != nil {
		t.Fatal("Normalize(nil) should be nil")
	}
}

func TestNormalize_KeepsCauseForOperators(t *testing.T) {
	cause := errors.New("disk full")
	e := Normalize(fmt.Errorf("save: %w", Wrap(cause, 503, "try again later")))
	if !errors.Is(e, cause) {
		t.Fatal("normalized error should still unwrap to the cause")
	}
	if strings.Contains(e.Message, "disk") {
		t.Fatalf("message leaks the cause: %q", e.Message)
	}
}

func TestCorsMismatch_DetailNamesOriginAndBase(t *testing.T) {
	e := CorsMismatch("http://evil.example", "http://list.local:8080")
	if !strings.Contains(e.Detail, "http://evil.example") || !strings.Contains(e.Detail, "http://list.local:8080") {
		t.Fatalf("detail = %q", e.Detail)
	}
	if strings.Contains(e.Message, "evil") {
		t.Fatalf("message must not echo the origin: %q", e.Message)
	}
}

func TestWrite_SanitizesInternalFailure(t *testing.T) {
	spy := newSpy()
	rec := httptest.NewRecorder()
	Write(rec, requestWith(spy), errors.New("open /var/lib/list/secret.json: permission denied"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret.json") {
		t.Fatalf("body leaks internal detail: %s", rec.Body.String())
	}
	b := decodeBody(t, rec)
	if b.Error != "internal server error" || b.Status != 500 {
		t.Fatalf("body = %+v", b)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if len(spy.errors) != 1 || !strings.Contains(spy.errors[0].Error(), "secret.json") {
		t.Fatalf("full error should be logged, got %v", spy.errors)
	}
}

func TestWrite_ClientErrorLoggedAsWarn(t *testing.T) {
	spy := newSpy()
	rec := httptest.NewRecorder()
	Write(rec, requestWith(spy), Unauthenticated())

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(spy.errors) != 0 {
		t.Fatal("4xx should not be logged at error level")
	}
	if len(spy.msgs) != 1 || spy.msgs[0] != "request rejected" {
		t.Fatalf("msgs = %v", spy.msgs)
	}
}

func TestWrite_NilIsNoop(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, requestWith(log.Nop()), nil)
	if rec.Body.Len() != 0 {
		t.Fatal("nil error should write nothing")
	}
}

func TestHandlerFunc(t *testing.T) {
	t.Run("success writes once", func(t *testing.T) {
		h := HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusCreated)
			return nil
		})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestWith(log.Nop()))
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("returned api error is rendered", func(t *testing.T) {
		h := HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
			return New(http.StatusConflict, "already running")
		})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestWith(log.Nop()))
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d", rec.Code)
		}
		if b := decodeBody(t, rec); b.Error != "already running" {
			t.Fatalf("body = %+v", b)
		}
	})

	t.Run("error after commit is only logged", func(t *testing.T) {
		spy := newSpy()
		h := HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("partial"))
			return errors.New("stream broke")
		})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestWith(spy))
		if rec.Code != http.StatusOK || rec.Body.String() != "partial" {
			t.Fatalf("response changed after commit: %d %q", rec.Code, rec.Body.String())
		}
		if len(spy.msgs) != 1 || spy.msgs[0] != "error after response committed" {
			t.Fatalf("msgs = %v", spy.msgs)
		}
	})
}

func TestNotFoundHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFoundHandler().ServeHTTP(rec, requestWith(log.Nop()))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if b := decodeBody(t, rec); b.Error != "resource not found" {
		t.Fatalf("body = %+v", b)
	}
}

func TestTrack(t *testing.T) {
	rec := httptest.NewRecorder()
	w := Track(rec)
	if Track(w) != w {
		t.Fatal("Track should not double wrap")
	}
	if Committed(w) {
		t.Fatal("fresh writer reported committed")
	}
	if Committed(rec) {
		t.Fatal("untracked writer reported committed")
	}
	_, _ = w.Write([]byte("x"))
	if !Committed(w) {
		t.Fatal("Write should commit")
	}
}

type outerWriter struct{ http.ResponseWriter }

func (o outerWriter) Unwrap() http.ResponseWriter { return o.ResponseWriter }

func TestCommitted_FollowsUnwrap(t *testing.T) {
	w := Track(httptest.NewRecorder())
	outer := outerWriter{w}
	w.WriteHeader(http.StatusNoContent)
	if !Committed(outer) {
		t.Fatal("Committed should see through Unwrap")
	}
}
