package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/MrEthical07/portalAuth/guard"
)

type sessionContextKey struct{}

// SessionFromContext returns the snapshot a guard admitted the request with.
func SessionFromContext(ctx context.Context) (portalAuth.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(portalAuth.Session)
	return s, ok
}

// SessionSource yields the session snapshot that applies to a request.
type SessionSource interface {
	SessionFor(r *http.Request) portalAuth.Session
}

// SessionSourceFunc adapts a function to [SessionSource].
type SessionSourceFunc func(r *http.Request) portalAuth.Session

// SessionFor calls f(r).
func (f SessionSourceFunc) SessionFor(r *http.Request) portalAuth.Session {
	return f(r)
}

// Snapshotter is satisfied by *portalAuth.Store.
type Snapshotter interface {
	Snapshot() portalAuth.Session
}

// Static serves every request from one store.
func Static(s Snapshotter) SessionSource {
	return SessionSourceFunc(func(*http.Request) portalAuth.Session {
		return s.Snapshot()
	})
}

// RetryAfterSeconds is the Retry-After value sent with the loading placeholder.
const RetryAfterSeconds = 1

const loadingPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Loading</title></head>
<body><p>Checking your session&hellip;</p></body></html>
`

// Guard returns middleware admitting requests whose session satisfies required
// (empty admits any signed-in user).
//
//   - Wait: 200 loading placeholder with Retry-After and Cache-Control: no-store.
//   - RedirectToLogin: 303 to the login route with the requested path in ?next=.
//   - RedirectToDashboard: 303 to the user's own dashboard.
//   - Allow: the next handler, with the snapshot in the request context.
//
// A nil source treats every request as signed out.
func Guard(source SessionSource, policy guard.Policy, required portalAuth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var s portalAuth.Session
			if source != nil {
				s = source.SessionFor(r)
			}

			d := guard.Evaluate(s, required)
			switch d {
			case guard.Allow:
				ctx := context.WithValue(r.Context(), sessionContextKey{}, s)
				next.ServeHTTP(w, r.WithContext(ctx))
			case guard.Wait:
				writeLoading(w)
			case guard.RedirectToLogin:
				http.Redirect(w, r, loginTarget(policy.LoginPath, r), http.StatusSeeOther)
			default:
				w.Header().Set("Cache-Control", "no-store")
				http.Redirect(w, r, policy.Target(d, s), http.StatusSeeOther)
			}
		})
	}
}

// RequireAuthenticated admits any signed-in user.
func RequireAuthenticated(source SessionSource, policy guard.Policy) func(http.Handler) http.Handler {
	return Guard(source, policy, "")
}

// RequireRole admits only users holding role, routing others with policy.
func RequireRole(source SessionSource, policy guard.Policy, role portalAuth.Role) func(http.Handler) http.Handler {
	return Guard(source, policy, role)
}

func writeLoading(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Cache-Control", "no-store")
	h.Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	h.Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(loadingPage))
}

func loginTarget(loginPath string, r *http.Request) string {
	next := r.URL.RequestURI()
	if next == "" || next == loginPath {
		return loginPath
	}
	return loginPath + "?next=" + url.QueryEscape(next)
}
