package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/gate"
	"github.com/sakif/leaseshield/internal/profile"
	"github.com/sakif/leaseshield/internal/session"
)

// GateHandler exposes route decisions to the browser, once or as a live
// stream that follows sign-out, token expiry and tier changes.
type GateHandler struct {
	gate    *gate.Gate
	tokens  *auth.TokenService
	watcher *profile.Watcher
	clock   clockwork.Clock
	logger  *slog.Logger
}

func NewGateHandler(g *gate.Gate, tokens *auth.TokenService, watcher *profile.Watcher, clock clockwork.Clock, logger *slog.Logger) *GateHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &GateHandler{gate: g, tokens: tokens, watcher: watcher, clock: clock, logger: logger}
}

type decisionResponse struct {
	Path     string        `json:"path"`
	Route    gate.Route    `json:"route"`
	Decision gate.Decision `json:"decision"`
}

// HandleDecision evaluates ?path= for the caller.
//
// HTTP: GET /api/gate?path=/manager
func (h *GateHandler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	d, route, ok := h.gate.Check(r.Context(), path, h.session(r))
	if !ok {
		writeError(w, apperror.NotFound("route", path))
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Path: path, Route: route, Decision: d})
}

// HandleEvents streams a "decision" event for ?path= now and after every
// change that alters it, until the client disconnects.
//
// HTTP: GET /api/gate/events?path=/manager
func (h *GateHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	route, _, ok := h.gate.Routes().Match(path)
	if !ok {
		writeError(w, apperror.NotFound("route", path))
		return
	}

	token := ""
	if c, err := r.Cookie(auth.CookieName); err == nil {
		token = c.Value
	}
	sessions := session.FromToken(h.tokens, token, h.clock)
	defer sessions.Close()

	events, err := startEventStream(w)
	if err != nil {
		h.logger.Error("gate events", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	open := func(ctx context.Context, userID string) gate.ProfileSource {
		return h.watcher.Open(ctx, userID)
	}
	h.gate.Watch(ctx, route, sessions, open, func(d gate.Decision) {
		if err := events.send("decision", decisionResponse{Path: path, Route: route, Decision: d}); err != nil {
			cancel()
		}
	})
}

func (h *GateHandler) session(r *http.Request) auth.Session {
	sess, err := auth.SessionFromRequest(r, h.tokens)
	if err != nil {
		return auth.Anonymous
	}
	return sess
}

// GuardAPI applies the gate decision of page to an API route: the paid
// tools answer 401, 402 or 403 where the page would redirect.
func GuardAPI(g *gate.Gate, page string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := auth.SessionFromContext(r.Context())
			d, _, ok := g.Check(r.Context(), page, sess)
			if !ok {
				writeError(w, apperror.NotFound("route", page))
				return
			}

			switch d.Kind {
			case gate.KindLoading:
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "loading", Message: "Try again shortly"})
			case gate.KindRedirect:
				switch d.Path {
				case gate.LoginPath:
					writeError(w, apperror.Unauthorized("sign in required"))
				case gate.PricingPath:
					writeError(w, apperror.UpgradeRequired("This feature requires a paid plan"))
				default:
					writeError(w, apperror.Forbidden("You do not have access to this feature"))
				}
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
