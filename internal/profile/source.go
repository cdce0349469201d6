// Package profile exposes a user's subscription profile as an observable
// stream that re-emits whenever the backend or an admin changes it.
package profile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/stream"
)

// State is one observation of the profile stream.
type State struct {
	Profile *model.Profile
	Loading bool
	Err     error
}

// Store reads profiles, creating the free-tier default on first sight.
type Store interface {
	GetOrCreateProfile(ctx context.Context, userID string) (*model.Profile, error)
}

// Watcher opens profile sources backed by a Store and a Notifier.
type Watcher struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
}

func NewWatcher(store Store, notifier Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{store: store, notifier: notifier, logger: logger}
}

// Load reads the profile once. It never returns a loading state.
func (w *Watcher) Load(ctx context.Context, userID string) State {
	if userID == "" {
		return State{}
	}
	p, err := w.store.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return State{Err: err}
	}
	return State{Profile: p}
}

// Source is the live profile of one user for one consumer.
type Source struct {
	value  *stream.Value[State]
	cancel context.CancelFunc

	loadMu sync.Mutex // serializes reloads so emissions stay in order

	mu          sync.Mutex
	unsubscribe func()
	closed      bool
}

// Open starts observing userID. The returned Source begins in the loading
// state and emits the loaded profile, then again after every change
// notification. An empty userID yields a settled {nil, false} source.
func (w *Watcher) Open(ctx context.Context, userID string) *Source {
	if userID == "" {
		return &Source{value: stream.NewValue(State{}), cancel: func() {}}
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Source{
		value:  stream.NewValue(State{Loading: true}),
		cancel: cancel,
	}

	go s.run(ctx, w, userID)
	return s
}

func (s *Source) run(ctx context.Context, w *Watcher, userID string) {
	unsub, err := w.notifier.Subscribe(ctx, userID, func() {
		s.reload(ctx, w, userID)
	})
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("profile subscription failed", slog.String("user_id", userID), slog.String("error", err.Error()))
			s.value.Set(State{Err: err})
		}
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsub()
		return
	}
	s.unsubscribe = unsub
	s.mu.Unlock()

	s.reload(ctx, w, userID)
}

func (s *Source) reload(ctx context.Context, w *Watcher, userID string) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if ctx.Err() != nil {
		return
	}
	st := w.Load(ctx, userID)
	if st.Err != nil && ctx.Err() != nil {
		return
	}
	if st.Err != nil {
		w.logger.Warn("profile load failed", slog.String("user_id", userID), slog.String("error", st.Err.Error()))
	}
	s.value.Set(st)
}

// Subscribe registers fn and immediately calls it with the current state.
func (s *Source) Subscribe(fn func(State)) (unsubscribe func()) {
	return s.value.Subscribe(fn)
}

// Current returns the latest state.
func (s *Source) Current() State {
	return s.value.Get()
}

// Listeners reports how many subscriptions are active on this source.
func (s *Source) Listeners() int {
	return s.value.Listeners()
}

// Close stops the change listener. It is safe to call more than once.
func (s *Source) Close() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}
