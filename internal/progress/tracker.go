package progress

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/stream"
)

// DefaultTTL is how long a finished or never-started bar stays watchable.
const DefaultTTL = 10 * time.Minute

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidID reports whether id can name a tracked bar.
func ValidID(id string) bool {
	return validID.MatchString(id)
}

// Update is one frame of a tracked bar. Done is set on the final frame,
// after which Percent is either Complete or 0.
type Update struct {
	Percent int  `json:"percent"`
	Done    bool `json:"done"`
}

type trackerKey struct {
	owner, id string
}

type tracked struct {
	value   *stream.Value[Update]
	started bool
	touched time.Time // creation, then settlement
	settled bool
}

// Tracker lets a client follow the progress bar of a blocking request from a
// second connection. Bars are keyed by owner and a client-chosen id, and a
// watcher may attach before or after the request begins.
type Tracker struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[trackerKey]*tracked
}

func NewTracker(clock clockwork.Clock, ttl time.Duration) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{clock: clock, ttl: ttl, entries: map[trackerKey]*tracked{}}
}

func (t *Tracker) entry(owner, id string) *tracked {
	key := trackerKey{owner: owner, id: id}
	e, ok := t.entries[key]
	if !ok {
		e = &tracked{value: stream.NewValue(Update{}), touched: t.clock.Now()}
		t.entries[key] = e
	}
	return e
}

// Run is a started bar. Exactly one of Succeed or Fail should be called;
// later calls are ignored.
type Run struct {
	t     *Tracker
	e     *tracked
	sim   *Simulator
	unsub func()
	once  sync.Once
}

// Begin starts a Simulator for target under (owner, id). An id already begun
// is a conflict. The ticker stops with ctx.
func (t *Tracker) Begin(ctx context.Context, owner, id string, target time.Duration) (*Run, error) {
	if !ValidID(id) {
		return nil, apperror.ValidationFailed("progressId", "invalid progress id")
	}

	t.mu.Lock()
	e := t.entry(owner, id)
	if e.started {
		t.mu.Unlock()
		return nil, apperror.Conflict("progress", id)
	}
	e.started = true
	t.mu.Unlock()

	sim := New(t.clock, target)
	run := &Run{t: t, e: e, sim: sim}
	run.unsub = sim.Subscribe(func(p int) {
		e.value.Set(Update{Percent: p})
	})
	sim.Start(ctx)
	return run, nil
}

// Succeed shows 100 and closes the bar.
func (r *Run) Succeed() {
	r.finish(r.sim.Succeed)
}

// Fail resets to 0 and closes the bar.
func (r *Run) Fail() {
	r.finish(r.sim.Fail)
}

func (r *Run) finish(settle func()) {
	r.once.Do(func() {
		settle()
		r.unsub()
		r.e.value.Set(Update{Percent: r.sim.Value(), Done: true})

		r.t.mu.Lock()
		r.e.settled = true
		r.e.touched = r.t.clock.Now()
		r.t.mu.Unlock()
	})
}

// Watch calls fn with the current frame of (owner, id) and every change
// after it, creating a waiting bar at 0 if the request has not begun yet.
func (t *Tracker) Watch(owner, id string, fn func(Update)) (unsubscribe func(), err error) {
	if !ValidID(id) {
		return nil, apperror.ValidationFailed("progressId", "invalid progress id")
	}
	t.mu.Lock()
	e := t.entry(owner, id)
	t.mu.Unlock()
	return e.value.Subscribe(fn), nil
}

// Prune drops bars that settled, or were never begun, more than ttl ago.
// Running bars are kept.
func (t *Tracker) Prune() {
	cutoff := t.clock.Now().Add(-t.ttl)

	t.mu.Lock()
	defer t.mu.Unlock()
	for key, e := range t.entries {
		if e.started && !e.settled {
			continue
		}
		if e.touched.Before(cutoff) {
			delete(t.entries, key)
		}
	}
}

// Len reports how many bars are held.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
