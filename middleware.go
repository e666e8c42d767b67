package authkit

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/dmitrymomot/authkit/pkg/session"
	"github.com/dmitrymomot/authkit/pkg/store"
)

type contextKey struct{ name string }

var sessionContextKey = &contextKey{"authkit.session"}

// SessionFromContext returns the authenticated session placed on the request
// context by the engine's middleware, or nil when the request is anonymous.
func SessionFromContext(ctx context.Context) *store.Session {
	s, _ := ctx.Value(sessionContextKey).(*store.Session)
	return s
}

// withSession stores the session on the request context.
func withSession(ctx context.Context, s *store.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// RequireSession is middleware for host applications: it validates the
// session token and rejects unauthenticated requests with 401.
func (e *Engine) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := e.authenticate(r)
		if err != nil {
			e.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

// authenticate resolves the request's session token to a live session.
func (e *Engine) authenticate(r *http.Request) (*store.Session, error) {
	token, err := e.transport.GetToken(r)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	sess, err := e.sessions.Validate(r.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) ||
			errors.Is(err, session.ErrSessionExpired) ||
			errors.Is(err, session.ErrSessionRevoked) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return sess, nil
}

// checkOrigin enforces the trusted-origin allow list on state-changing
// requests. Requests without an Origin header (non-browser clients) pass.
func (e *Engine) checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(e.cfg.TrustedOrigins) == 0 || r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		origin := r.Header.Get("Origin")
		if origin == "" || e.originTrusted(origin) {
			next.ServeHTTP(w, r)
			return
		}
		e.respondError(w, r, ErrUntrustedOrigin)
	})
}

func (e *Engine) originTrusted(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, trusted := range e.cfg.TrustedOrigins {
		if origin == trusted {
			return true
		}
		// Allow bare-host entries ("example.com") to match any scheme.
		if parsed.Host != "" && parsed.Host == trusted {
			return true
		}
	}
	return false
}
