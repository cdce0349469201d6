package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/xid"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/stream"
)

// DefaultTTL is how long a finished batch stays retrievable.
const DefaultTTL = 30 * time.Minute

type job struct {
	id     string
	userID string
	value  *stream.Value[Snapshot]
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	finished time.Time
}

// Registry runs batches in the background so a page can follow them over
// Server-Sent Events and reconnect without restarting the work.
type Registry struct {
	runner *Runner
	clock  clockwork.Clock
	ttl    time.Duration
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

func NewRegistry(runner *Runner, clock clockwork.Clock, ttl time.Duration, logger *slog.Logger) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		runner: runner,
		clock:  clock,
		ttl:    ttl,
		logger: logger,
		jobs:   make(map[string]*job),
	}
}

// Start validates the batch and runs it in the background as sess. The
// session travels in the run's context so every item mints its own bearer.
func (r *Registry) Start(sess auth.Session, tasks []model.AnalysisTask) (string, error) {
	if !sess.Present {
		return "", apperror.Unauthorized("sign in required")
	}
	if err := CheckSize(len(tasks)); err != nil {
		return "", err
	}

	r.Prune()

	ctx, cancel := context.WithCancel(auth.WithSession(context.Background(), sess))
	j := &job{
		id:     xid.New().String(),
		userID: sess.UserID,
		value:  stream.NewValue(Snapshot{State: StateIdle}),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.jobs[j.id] = j
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(j.done)
		defer cancel()

		final, err := r.runner.Run(ctx, tasks, j.value.Set)
		if err != nil {
			r.logger.Error("batch failed to start", slog.String("batch_id", j.id), slog.String("error", err.Error()))
		}
		j.value.Set(final)

		j.mu.Lock()
		j.finished = r.clock.Now()
		j.mu.Unlock()

		r.logger.Info("batch finished",
			slog.String("batch_id", j.id),
			slog.String("user_id", j.userID),
			slog.String("state", string(final.State)),
		)
	}()

	return j.id, nil
}

// lookup returns the job only to its owner; anyone else gets NotFound.
func (r *Registry) lookup(id, userID string) (*job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.userID != userID {
		return nil, apperror.NotFound("batch", id)
	}
	return j, nil
}

func (r *Registry) Snapshot(id, userID string) (Snapshot, error) {
	j, err := r.lookup(id, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return j.value.Get().clone(), nil
}

// Subscribe calls fn with the current snapshot and every later one.
func (r *Registry) Subscribe(id, userID string, fn func(Snapshot)) (unsubscribe func(), err error) {
	j, err := r.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	return j.value.Subscribe(fn), nil
}

// Done is closed when the batch reaches a terminal state.
func (r *Registry) Done(id, userID string) (<-chan struct{}, error) {
	j, err := r.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	return j.done, nil
}

// Cancel stops a running batch before its next item.
func (r *Registry) Cancel(id, userID string) error {
	j, err := r.lookup(id, userID)
	if err != nil {
		return err
	}
	j.cancel()
	return nil
}

// Prune drops finished batches older than the TTL.
func (r *Registry) Prune() {
	cutoff := r.clock.Now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, j := range r.jobs {
		j.mu.Lock()
		expired := !j.finished.IsZero() && j.finished.Before(cutoff)
		j.mu.Unlock()
		if expired {
			delete(r.jobs, id)
		}
	}
}

// Shutdown cancels every running batch and waits for them to stop.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, j := range r.jobs {
		j.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
