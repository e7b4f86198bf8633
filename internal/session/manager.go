package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"github.com/keithlinneman/listwebserver/internal/log"
	"github.com/keithlinneman/listwebserver/internal/pipeline"
	"github.com/keithlinneman/listwebserver/internal/xerrors"
)

const DefaultCookieName = "list.sid"

var ErrNoSecret = errors.New("session: cookie secret is empty")

type Options struct {
	Store Store
	// Secret keys the HMAC that signs the cookie value
	Secret     []byte
	CookieName string
	// Secure marks the cookie Secure and SameSite=None so a cross-site
	// webapp can send it. Otherwise SameSite=Lax.
	Secure bool
	TTL    time.Duration
	Now    func() time.Time

	// metrics hooks, optional
	OnCreated   func()
	OnRefreshed func()
}

// Manager is the session gate. It also performs the login and logout
// transitions for the auth handlers.
type Manager struct {
	store     Store
	codec     *securecookie.SecureCookie
	name      string
	secure    bool
	ttl       time.Duration
	now       func() time.Time
	created   func()
	refreshed func()
}

func NewManager(opts Options) (*Manager, error) {
	if len(opts.Secret) == 0 {
		return nil, xerrors.WithStack(ErrNoSecret)
	}
	if opts.Store == nil {
		return nil, xerrors.New("session: store is nil")
	}
	m := &Manager{
		store:     opts.Store,
		name:      opts.CookieName,
		secure:    opts.Secure,
		ttl:       opts.TTL,
		now:       opts.Now,
		created:   opts.OnCreated,
		refreshed: opts.OnRefreshed,
	}
	if m.name == "" {
		m.name = DefaultCookieName
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.now == nil {
		m.now = time.Now
	}
	// sign only: the value is an opaque id, there is nothing to hide
	m.codec = securecookie.New(opts.Secret, nil).MaxAge(int(m.ttl / time.Second))
	return m, nil
}

func (m *Manager) CookieName() string { return m.name }

func (m *Manager) Name() string { return "session" }

// Admit loads the session named by the cookie or starts a new one, pushes
// its expiry to now+TTL and re-issues the cookie. The record is
// placed in the returned request's context.
func (m *Manager) Admit(w http.ResponseWriter, r *http.Request) (*http.Request, pipeline.Outcome) {
	ctx := r.Context()
	now := m.now()

	cur, found, err := m.lookup(ctx, r)
	if err != nil {
		return nil, pipeline.Errored(xerrors.Wrap(err, "load session"))
	}
	var rec Record
	if found {
		// the record may have been logged out since lookup; then start over
		rec, found, err = m.store.Refresh(ctx, cur.ID, now.Add(m.ttl))
		if err != nil {
			return nil, pipeline.Errored(xerrors.Wrap(err, "refresh session"))
		}
	}
	if !found {
		rec = m.newRecord(now)
		if err := m.store.Save(ctx, rec); err != nil {
			return nil, pipeline.Errored(xerrors.Wrap(err, "save session"))
		}
	}
	if err := m.setCookie(w, rec); err != nil {
		return nil, pipeline.Errored(err)
	}

	if found {
		hook(m.refreshed)
	} else {
		hook(m.created)
	}
	return r.WithContext(WithRecord(ctx, rec)), pipeline.Continue()
}

// Login replaces the current session with a fresh authenticated one for
// user. The old id is deleted so it cannot be replayed.
func (m *Manager) Login(ctx context.Context, w http.ResponseWriter, user string) (Record, error) {
	if user == "" {
		return Record{}, xerrors.New("session: login without user")
	}
	if old, ok := FromContext(ctx); ok {
		if err := m.store.Delete(ctx, old.ID); err != nil {
			return Record{}, xerrors.Wrap(err, "drop previous session")
		}
	}
	rec := m.newRecord(m.now())
	rec.Authenticated = true
	rec.User = user
	if err := m.store.Save(ctx, rec); err != nil {
		return Record{}, xerrors.Wrap(err, "save session")
	}
	if err := m.setCookie(w, rec); err != nil {
		return Record{}, err
	}
	hook(m.created)
	return rec, nil
}

// Logout deletes the current session and expires the cookie.
func (m *Manager) Logout(ctx context.Context, w http.ResponseWriter) error {
	if rec, ok := FromContext(ctx); ok {
		if err := m.store.Delete(ctx, rec.ID); err != nil {
			return xerrors.Wrap(err, "delete session")
		}
	}
	m.replaceCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite(),
	})
	return nil
}

// lookup returns found=false for a missing or forged cookie and for an
// unknown or expired id. Only store failures are errors.
func (m *Manager) lookup(ctx context.Context, r *http.Request) (Record, bool, error) {
	c, err := r.Cookie(m.name)
	if err != nil || c.Value == "" {
		return Record{}, false, nil
	}
	var id string
	if err := m.codec.Decode(m.name, c.Value, &id); err != nil {
		log.FromContext(ctx).Debug(ctx, "session cookie rejected", "reason", err.Error())
		return Record{}, false, nil
	}
	rec, ok, err := m.store.Get(ctx, id)
	if err != nil || !ok {
		return Record{}, false, err
	}
	if rec.Expired(m.now()) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (m *Manager) newRecord(now time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
}

func (m *Manager) setCookie(w http.ResponseWriter, rec Record) error {
	val, err := m.codec.Encode(m.name, rec.ID)
	if err != nil {
		return xerrors.Wrap(err, "sign session cookie")
	}
	m.replaceCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    val,
		Path:     "/",
		Expires:  rec.ExpiresAt,
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite(),
	})
	return nil
}

// replaceCookie drops any Set-Cookie for the same name queued earlier in
// the request (Admit then Login) so the browser sees one value.
func (m *Manager) replaceCookie(w http.ResponseWriter, c *http.Cookie) {
	h := w.Header()
	prefix := m.name + "="
	var kept []string
	for _, v := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	h.Del("Set-Cookie")
	for _, v := range kept {
		h.Add("Set-Cookie", v)
	}
	http.SetCookie(w, c)
}

func (m *Manager) sameSite() http.SameSite {
	if m.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func hook(fn func()) {
	if fn != nil {
		fn()
	}
}

type recordKey struct{}

func WithRecord(ctx context.Context, rec Record) context.Context {
	return context.WithValue(ctx, recordKey{}, rec)
}

// FromContext returns the record admitted for this request.
func FromContext(ctx context.Context) (Record, bool) {
	rec, ok := ctx.Value(recordKey{}).(Record)
	return rec, ok
}
