// Package apihttp serves the small set of /api endpoints the front door
// owns itself. Everything under /api is behind the auth barrier, so these
// handlers can assume an authenticated session.
package apihttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/listwebserver/internal/apierr"
	"github.com/keithlinneman/listwebserver/internal/httpmw"
	"github.com/keithlinneman/listwebserver/internal/session"
	"github.com/keithlinneman/listwebserver/internal/staticgen"
	"github.com/keithlinneman/listwebserver/internal/version"
)

// GeneratorStatus reports the latest static generator run.
type GeneratorStatus interface {
	Last() (res staticgen.Result, finished time.Time, ok bool)
}

// API implements the /api endpoints
type API struct {
	generator GeneratorStatus
	version   version.Info
	now       func() time.Time
}

// NewAPI creates the handler set. generator may be nil.
func NewAPI(generator GeneratorStatus, vi version.Info) *API {
	return &API{generator: generator, version: vi, now: time.Now}
}

// RegisterRoutes attaches the endpoints to the router
func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.With(httpmw.Scope("api.user")).Method(http.MethodGet, "/user", apierr.HandlerFunc(api.HandleUser))
		r.With(httpmw.Scope("api.version")).Method(http.MethodGet, "/version", apierr.HandlerFunc(api.HandleVersion))
		r.With(httpmw.Scope("api.status")).Method(http.MethodGet, "/status", apierr.HandlerFunc(api.HandleStatus))
	})
}

// UserResponse is the authenticated caller.
type UserResponse struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleUser returns the session's user. The barrier has already refused
// anonymous sessions; the check here keeps the handler safe if mounted
// elsewhere.
func (api *API) HandleUser(w http.ResponseWriter, r *http.Request) error {
	rec, ok := session.FromContext(r.Context())
	if !ok || !rec.Authenticated {
		return apierr.Unauthenticated()
	}
	return httpmw.WriteJSON(w, http.StatusOK, UserResponse{
		Username:  rec.User,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	})
}

// HandleVersion serves build metadata
func (api *API) HandleVersion(w http.ResponseWriter, r *http.Request) error {
	return httpmw.WriteJSON(w, http.StatusOK, api.version)
}

// StatusResponse summarizes server state for the webapp. The generator's
// output is never included, it can carry paths and config values.
type StatusResponse struct {
	ServerTime time.Time        `json:"server_time"`
	Version    string           `json:"version"`
	Generator  *GeneratorReport `json:"static_generator"`
}

// GeneratorReport is the public view of a staticgen.Result.
type GeneratorReport struct {
	Finished   bool       `json:"finished"`
	Succeeded  bool       `json:"succeeded"`
	DurationMs int64      `json:"duration_ms,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// HandleStatus serves server time, version and the static generator outcome
func (api *API) HandleStatus(w http.ResponseWriter, r *http.Request) error {
	resp := StatusResponse{
		ServerTime: api.now().UTC(),
		Version:    api.version.Version,
		Generator:  &GeneratorReport{},
	}
	if api.generator != nil {
		if res, finished, ok := api.generator.Last(); ok {
			at := finished.UTC()
			resp.Generator = &GeneratorReport{
				Finished:   true,
				Succeeded:  res.ExitSucceeded,
				DurationMs: res.Duration.Milliseconds(),
				FinishedAt: &at,
			}
		}
	}
	return httpmw.WriteJSON(w, http.StatusOK, resp)
}
