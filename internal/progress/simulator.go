// Package progress drives the cosmetic progress bar shown while an analysis
// request is in flight.
//
// The analysis API reports no progress. A Simulator counts from 0 toward 95
// on a fixed cadence sized so the ceiling is reached around the expected
// duration, then jumps to 100 when the caller reports success or back to 0
// on failure. It runs beside the request and never reads from it.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sakif/leaseshield/internal/stream"
)

const (
	Ceiling  = 95
	Complete = 100

	// DocumentTarget is the expected duration of a document analysis.
	DocumentTarget = 50 * time.Second
	// ImageTarget is the expected duration of an image analysis.
	ImageTarget = 30 * time.Second

	minInterval = 100 * time.Millisecond
)

// Interval is the tick period that reaches Ceiling at roughly target.
func Interval(target time.Duration) time.Duration {
	iv := target / Ceiling
	if iv < minInterval {
		return minInterval
	}
	return iv
}

// Simulator is one progress bar.
type Simulator struct {
	clock    clockwork.Clock
	interval time.Duration
	value    *stream.Value[int]

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	settled bool
}

// New returns a Simulator at 0 for a request expected to take target.
func New(clock clockwork.Clock, target time.Duration) *Simulator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Simulator{
		clock:    clock,
		interval: Interval(target),
		value:    stream.NewValue(0),
	}
}

// Start begins ticking. It is a no-op if already started or settled. The
// ticker also stops when ctx ends.
func (s *Simulator) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil || s.settled {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ticker := s.clock.NewTicker(s.interval)
	go s.run(ctx, ticker, s.stop, s.done)
}

func (s *Simulator) run(ctx context.Context, ticker clockwork.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.Chan():
			reached := false
			s.value.Update(func(v int) int {
				if v < Ceiling {
					v++
				}
				reached = v >= Ceiling
				return v
			})
			if reached {
				return
			}
		}
	}
}

// Succeed stops the ticker and shows 100.
func (s *Simulator) Succeed() {
	s.settle(Complete)
}

// Fail stops the ticker and resets to 0.
func (s *Simulator) Fail() {
	s.settle(0)
}

func (s *Simulator) settle(v int) {
	s.mu.Lock()
	stop, done := s.stop, s.done
	already := s.settled
	s.settled = true
	s.stop = nil
	s.mu.Unlock()

	if already {
		return
	}
	if stop != nil {
		close(stop)
		<-done
	}
	s.value.Set(v)
}

// Value returns the current percentage.
func (s *Simulator) Value() int {
	return s.value.Get()
}

// Subscribe calls fn with the current percentage and every change after it.
func (s *Simulator) Subscribe(fn func(int)) (unsubscribe func()) {
	return s.value.Subscribe(fn)
}
