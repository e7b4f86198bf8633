package auth

import (
	"net/http"

	"github.com/keithlinneman/listwebserver/internal/apierr"
	"github.com/keithlinneman/listwebserver/internal/pipeline"
	"github.com/keithlinneman/listwebserver/internal/session"
)

// Barrier admits only requests whose session is authenticated. It is meant
// to be scoped with pipeline.Prefix and placed after the session gate.
type Barrier struct {
	// OnReject is called for every rejected request, optional
	OnReject func()
}

func (b Barrier) Name() string { return "auth" }

func (b Barrier) Admit(_ http.ResponseWriter, r *http.Request) (*http.Request, pipeline.Outcome) {
	if rec, ok := session.FromContext(r.Context()); ok && rec.Authenticated {
		return nil, pipeline.Continue()
	}
	if b.OnReject != nil {
		b.OnReject()
	}
	return nil, pipeline.Rejected(apierr.Unauthenticated())
}
