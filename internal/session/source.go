// Package session exposes the signed-in identity as an observable stream.
//
// A Source starts in the loading state, resolves once the token has been
// checked, and flips to signed-out on its own when the token expires, so
// anything watching it (the reactive gate) re-evaluates without polling.
package session

import (
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/stream"
)

// State is one observation of the session stream. An auth error leaves
// Session anonymous: it is never read as a signed-in user.
type State struct {
	Session auth.Session
	Loading bool
	Err     error
}

// Validator checks a raw session token.
type Validator interface {
	Validate(token string) (auth.Session, error)
}

// Source is the observable session for one consumer (a page, an SSE stream).
type Source struct {
	value *stream.Value[State]
	clock clockwork.Clock

	mu     sync.Mutex
	expiry clockwork.Timer
}

// NewSource returns a Source in the loading state.
func NewSource(clock clockwork.Clock) *Source {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Source{
		value: stream.NewValue(State{Loading: true}),
		clock: clock,
	}
}

// FromToken resolves a Source from a raw cookie value. An empty token means
// signed out; an invalid one is recorded as the error and also signed out.
func FromToken(v Validator, token string, clock clockwork.Clock) *Source {
	s := NewSource(clock)
	if token == "" {
		s.Resolve(auth.Anonymous, nil)
		return s
	}
	sess, err := v.Validate(token)
	s.Resolve(sess, err)
	return s
}

// Resolve publishes the outcome of a sign-in check and arms the expiry timer.
func (s *Source) Resolve(sess auth.Session, err error) {
	s.stopExpiry()

	if err != nil || !sess.Present {
		s.value.Set(State{Session: auth.Anonymous, Err: err})
		return
	}

	if !sess.ExpiresAt.IsZero() {
		remaining := sess.ExpiresAt.Sub(s.clock.Now())
		if remaining <= 0 {
			s.value.Set(State{Session: auth.Anonymous, Err: auth.ErrTokenExpired})
			return
		}
		s.mu.Lock()
		s.expiry = s.clock.AfterFunc(remaining, func() {
			s.value.Set(State{Session: auth.Anonymous, Err: auth.ErrTokenExpired})
		})
		s.mu.Unlock()
	}

	s.value.Set(State{Session: sess})
}

// SignOut publishes a signed-out state.
func (s *Source) SignOut() {
	s.stopExpiry()
	s.value.Set(State{Session: auth.Anonymous})
}

// Subscribe registers fn and immediately calls it with the current state.
func (s *Source) Subscribe(fn func(State)) (unsubscribe func()) {
	return s.value.Subscribe(fn)
}

// Current returns the latest state.
func (s *Source) Current() State {
	return s.value.Get()
}

// Listeners reports how many subscriptions are active.
func (s *Source) Listeners() int {
	return s.value.Listeners()
}

// Close stops the expiry timer. Subscribers must still unsubscribe.
func (s *Source) Close() {
	s.stopExpiry()
}

func (s *Source) stopExpiry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

// IsExpired reports whether a state came from an expired token.
func (st State) IsExpired() bool {
	return errors.Is(st.Err, auth.ErrTokenExpired)
}
