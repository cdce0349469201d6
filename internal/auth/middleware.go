package auth

import (
	"context"
	"net/http"
)

// contextKey is an unexported type used for context keys in this package, so
// no other package can read or shadow the session stored in a context.
type contextKey string

const sessionKey contextKey = "session"

// CookieName is the HttpOnly cookie carrying the session token.
const CookieName = "token"

// RequireAuth rejects requests without a valid session with 401 and stores
// the session in the request context otherwise.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := SessionFromRequest(r, tokens)
			if err != nil || !session.Present {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// OptionalAuth stores the session when a valid token is present and lets
// anonymous requests through untouched. Handlers check Present.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if session, err := SessionFromRequest(r, tokens); err == nil && session.Present {
				r = r.WithContext(WithSession(r.Context(), session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession returns a copy of ctx carrying session.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext returns the session stored by the middleware, or
// Anonymous for requests that never passed through it.
func SessionFromContext(ctx context.Context) Session {
	session, ok := ctx.Value(sessionKey).(Session)
	if !ok {
		return Anonymous
	}
	return session
}

// UserIDFromContext retrieves the authenticated user's ID from the context.
// Returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	session := SessionFromContext(ctx)
	return session.UserID, session.Present && session.UserID != ""
}

// SessionFromRequest reads the session cookie and validates it. A missing
// cookie yields Anonymous with a nil error; a bad token yields Anonymous and
// the validation error so callers can log it, but must not treat it as a
// session.
func SessionFromRequest(r *http.Request, tokens *TokenService) (Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return Anonymous, nil
	}
	return tokens.Validate(cookie.Value)
}
