package httpmw

import (
	"net/http"

	"github.com/keithlinneman/listwebserver/internal/apierr"
	"github.com/keithlinneman/listwebserver/internal/log"
	"github.com/keithlinneman/listwebserver/internal/xerrors"
)

// Recover turns a handler panic into a sanitized 500 and logs it. onPanic,
// if set, is called once per recovered panic (metrics). http.ErrAbortHandler
// is re-raised so net/http can abort the connection as intended.
func Recover(base log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if base == nil {
		base = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := apierr.Track(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				var err error
				if e, ok := rec.(error); ok {
					err = xerrors.Wrap(e, "panic")
				} else {
					err = xerrors.Newf("panic: %v", rec)
				}

				base.With(
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				).Error(r.Context(), err, "httpserver panic recovered")

				if onPanic != nil {
					onPanic()
				}
				apierr.Respond(tw, apierr.Internal(err))
			}()
			next.ServeHTTP(tw, r)
		})
	}
}
