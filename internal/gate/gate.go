package gate

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/profile"
	"github.com/sakif/leaseshield/internal/session"
	"github.com/sakif/leaseshield/internal/stream"
)

// ProfileLoader reads a profile once.
type ProfileLoader interface {
	Load(ctx context.Context, userID string) profile.State
}

// SessionSource is an observable session.
type SessionSource interface {
	Subscribe(fn func(session.State)) (unsubscribe func())
}

// ProfileSource is an observable profile for one user.
type ProfileSource interface {
	Subscribe(fn func(profile.State)) (unsubscribe func())
	Close()
}

// ProfileOpener starts observing a user's profile.
type ProfileOpener func(ctx context.Context, userID string) ProfileSource

// Gate applies the route table to requests and live streams.
type Gate struct {
	routes     *Routes
	adminEmail string
	profiles   ProfileLoader
}

func New(routes *Routes, adminEmail string, profiles ProfileLoader) *Gate {
	return &Gate{routes: routes, adminEmail: adminEmail, profiles: profiles}
}

func (g *Gate) Routes() *Routes {
	return g.routes
}

// Evaluate decides a single route against one snapshot of both streams.
// Public routes are always allowed.
func (g *Gate) Evaluate(route Route, sess session.State, prof profile.State) Decision {
	in := Input{
		Session:        sess.Session,
		SessionLoading: sess.Loading,
		Profile:        prof.Profile,
		ProfileLoading: prof.Loading,
		Requirements:   route.Requirements,
		AdminEmail:     g.adminEmail,
	}
	// An auth error never counts as signed in.
	if sess.Err != nil {
		in.Session = auth.Anonymous
	}

	switch {
	case route.Trial:
		return DecideTrial(in)
	case route.Public:
		return Allow()
	default:
		return Decide(in)
	}
}

// Check resolves path for an already-validated session, loading the profile
// synchronously. ok is false for paths outside the route table.
func (g *Gate) Check(ctx context.Context, path string, sess auth.Session) (d Decision, route Route, ok bool) {
	route, _, ok = g.routes.Match(path)
	if !ok {
		return Decision{}, Route{}, false
	}

	prof := profile.State{}
	if sess.Present && (route.Trial || route.RequirePaid) {
		prof = g.profiles.Load(ctx, sess.UserID)
	}
	return g.Evaluate(route, session.State{Session: sess}, prof), route, true
}

// Watch re-evaluates route on every session or profile change and calls fn
// whenever the decision differs from the previous one. The profile stream
// follows the signed-in user: it is opened on sign-in, closed on sign-out
// and replaced when the user changes. Watch blocks until ctx is done and
// releases every subscription before returning.
func (g *Gate) Watch(ctx context.Context, route Route, sessions SessionSource, open ProfileOpener, fn func(Decision)) {
	type event struct {
		sess   *session.State
		prof   *profile.State
		userID string
	}

	// Listener callbacks only enqueue; all state lives in this goroutine.
	mb := stream.NewMailbox[event]()
	unsubSession := sessions.Subscribe(func(s session.State) {
		mb.Put(event{sess: &s})
	})
	defer unsubSession()

	var (
		sess      session.State
		prof      profile.State
		userID    string
		profSrc   ProfileSource
		unsubProf func()
		last      Decision
		haveLast  bool
	)
	closeProfile := func() {
		if unsubProf != nil {
			unsubProf()
			unsubProf = nil
		}
		if profSrc != nil {
			profSrc.Close()
			profSrc = nil
		}
	}
	defer closeProfile()

	for {
		select {
		case <-ctx.Done():
			return
		case <-mb.Ready():
		}

		for _, ev := range mb.Drain() {
			if ev.sess != nil {
				sess = *ev.sess
				next := ""
				if sess.Err == nil && sess.Session.Present {
					next = sess.Session.UserID
				}
				if next != userID {
					closeProfile()
					userID = next
					prof = profile.State{}
					if userID != "" {
						prof = profile.State{Loading: true}
						profSrc = open(ctx, userID)
						owner := userID
						unsubProf = profSrc.Subscribe(func(p profile.State) {
							mb.Put(event{prof: &p, userID: owner})
						})
					}
				}
			}
			// Late events from a closed profile stream are dropped.
			if ev.prof != nil && ev.userID == userID {
				prof = *ev.prof
			}
		}

		d := g.Evaluate(route, sess, prof)
		if !haveLast || d != last {
			last, haveLast = d, true
			fn(d)
		}
	}
}

type routeKey struct{}

// RouteFromContext returns the route Middleware matched.
func RouteFromContext(ctx context.Context) (Route, bool) {
	r, ok := ctx.Value(routeKey{}).(Route)
	return r, ok
}

// Middleware gates page requests. Redirects are 303 See Other; allowed
// requests carry the session and matched route in their context. Paths
// outside the route table fall through to next.
func (g *Gate) Middleware(tokens *auth.TokenService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := auth.SessionFromRequest(r, tokens)
			if err != nil {
				logger.Debug("gate: treating invalid session as signed out",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				sess = auth.Anonymous
			}

			d, route, ok := g.Check(r.Context(), r.URL.Path, sess)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			switch d.Kind {
			case KindRedirect:
				http.Redirect(w, r, d.Path, http.StatusSeeOther)
				return
			case KindLoading:
				// Server-side state is resolved before deciding; this only
				// happens if a loader reports loading.
				w.Header().Set("Retry-After", "1")
				http.Error(w, "loading", http.StatusServiceUnavailable)
				return
			}

			ctx := context.WithValue(r.Context(), routeKey{}, route)
			if sess.Present {
				ctx = auth.WithSession(ctx, sess)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
