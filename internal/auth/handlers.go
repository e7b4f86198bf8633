package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/listwebserver/internal/apierr"
	"github.com/keithlinneman/listwebserver/internal/httpmw"
	"github.com/keithlinneman/listwebserver/internal/log"
	"github.com/keithlinneman/listwebserver/internal/session"
	"github.com/keithlinneman/listwebserver/internal/xerrors"
)

// maxLoginBody is far above any real credential pair
const maxLoginBody = 4 << 10

// login attempt results reported to OnAttempt
const (
	ResultSuccess = "success"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

type Handlers struct {
	Sessions *session.Manager
	Provider Provider
	// LoginLimiter wraps POST /auth/login when set
	LoginLimiter func(http.Handler) http.Handler
	OnAttempt    func(result string)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	Username      string    `json:"username,omitempty"`
	Authenticated bool      `json:"authenticated"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Routes mounts /auth/login, /auth/logout and /auth/user on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		login := []func(http.Handler) http.Handler{httpmw.Scope("auth.login")}
		if h.LoginLimiter != nil {
			login = append(login, h.LoginLimiter)
		}
		login = append(login, httpmw.MaxBody(maxLoginBody))

		r.With(login...).Method(http.MethodPost, "/login", apierr.HandlerFunc(h.Login))
		r.With(httpmw.Scope("auth.logout")).Method(http.MethodPost, "/logout", apierr.HandlerFunc(h.Logout))
		r.With(httpmw.Scope("auth.user")).Method(http.MethodGet, "/user", apierr.HandlerFunc(h.User))
	})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var req loginRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apierr.Wrap(err, http.StatusRequestEntityTooLarge, "request body too large")
		}
		return apierr.BadRequest("malformed login request", err)
	}
	if req.Username == "" || req.Password == "" {
		return apierr.BadRequest("username and password are required", nil)
	}

	id, err := h.Provider.Authenticate(ctx, req.Username, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		h.attempt(ResultInvalid)
		return apierr.Wrap(err, http.StatusUnauthorized, "invalid credentials")
	case err != nil:
		h.attempt(ResultError)
		return xerrors.Wrap(err, "authenticate")
	}

	rec, err := h.Sessions.Login(ctx, w, id.Username)
	if err != nil {
		h.attempt(ResultError)
		return xerrors.Wrap(err, "start authenticated session")
	}
	h.attempt(ResultSuccess)
	log.FromContext(ctx).Info(ctx, "login succeeded", "user", id.Username)

	return httpmw.WriteJSON(w, http.StatusOK, userResponse{
		Username:      rec.User,
		Authenticated: true,
		ExpiresAt:     rec.ExpiresAt,
	})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) error {
	if err := h.Sessions.Logout(r.Context(), w); err != nil {
		return xerrors.Wrap(err, "logout")
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// User reports the caller's session state. Anonymous sessions get 401 so the
// webapp can send the user to its login form.
func (h *Handlers) User(w http.ResponseWriter, r *http.Request) error {
	rec, ok := session.FromContext(r.Context())
	if !ok || !rec.Authenticated {
		return apierr.Unauthenticated()
	}
	return httpmw.WriteJSON(w, http.StatusOK, userResponse{
		Username:      rec.User,
		Authenticated: true,
		ExpiresAt:     rec.ExpiresAt,
	})
}

func (h *Handlers) attempt(result string) {
	if h.OnAttempt != nil {
		h.OnAttempt(result)
	}
}
