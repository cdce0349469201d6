// Package batch analyzes up to five documents one after another.
//
// Items run strictly in order: item i+1 is sent only after item i's call
// has returned. A failure marks that row and the run moves on, except an
// upgrade demand, which stops the run so no further quota is spent.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/progress"
)

// MaxItems is the largest batch accepted.
const MaxItems = 5

type State string

const (
	StateIdle      State = "Idle"
	StateRunning   State = "Running"
	StateComplete  State = "Complete"
	StateAborted   State = "Aborted"
	StateCancelled State = "Cancelled"
)

// Terminal reports whether no more rows will change.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateAborted || s == StateCancelled
}

// Snapshot is the observable state of a run. Rows has one entry per task
// from the start; entries move from Pending to Complete or Error in place.
type Snapshot struct {
	State           State                    `json:"state"`
	Current         int                      `json:"currentIndex"`
	Progress        int                      `json:"progress"`
	Rows            []model.MultiAnalysisRow `json:"rows"`
	UpgradeRequired bool                     `json:"upgradeRequired"`
}

func (s Snapshot) clone() Snapshot {
	rows := make([]model.MultiAnalysisRow, len(s.Rows))
	copy(rows, s.Rows)
	s.Rows = rows
	return s
}

// Analyzer is the single-item analysis call.
type Analyzer interface {
	Analyze(ctx context.Context, task model.AnalysisTask) (model.AnalysisResult, error)
}

// Runner executes batches.
type Runner struct {
	analyzer Analyzer
	clock    clockwork.Clock
	logger   *slog.Logger
}

func NewRunner(analyzer Analyzer, clock clockwork.Clock, logger *slog.Logger) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{analyzer: analyzer, clock: clock, logger: logger}
}

// CheckSize rejects batches over MaxItems before anything is sent.
func CheckSize(n int) error {
	if n == 0 {
		return apperror.ValidationFailed("files", "Please select at least one file")
	}
	if n > MaxItems {
		return apperror.ValidationFailed("files", fmt.Sprintf("You can analyze at most %d files at once", MaxItems))
	}
	return nil
}

// run is the mutable state of one Run call. observe is called with a copy
// after every change, serialized by mu.
type run struct {
	mu      sync.Mutex
	snap    Snapshot
	observe func(Snapshot)
}

func (r *run) update(fn func(*Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.snap)
	if r.observe != nil {
		r.observe(r.snap.clone())
	}
}

// Run processes tasks in order and returns the final snapshot. observe may
// be nil.
func (rn *Runner) Run(ctx context.Context, tasks []model.AnalysisTask, observe func(Snapshot)) (Snapshot, error) {
	if err := CheckSize(len(tasks)); err != nil {
		return Snapshot{State: StateIdle}, err
	}

	rows := make([]model.MultiAnalysisRow, len(tasks))
	for i, t := range tasks {
		rows[i] = model.MultiAnalysisRow{FileName: displayName(t, i), Status: model.RowPending}
	}
	r := &run{snap: Snapshot{State: StateRunning, Rows: rows}, observe: observe}
	r.update(func(*Snapshot) {})

	for i, task := range tasks {
		if ctx.Err() != nil {
			r.update(func(s *Snapshot) { s.State = StateCancelled })
			return r.result(), nil
		}

		r.update(func(s *Snapshot) {
			s.Current = i
			s.Progress = 0
		})

		res, err := rn.analyzeOne(ctx, r, task)

		if err != nil && ctx.Err() != nil {
			r.update(func(s *Snapshot) { s.State = StateCancelled })
			return r.result(), nil
		}

		upgrade := false
		r.update(func(s *Snapshot) {
			row := &s.Rows[i]
			switch {
			case err != nil:
				row.Status = model.RowError
				row.Error = err.Error()
			case !res.Success:
				row.Status = model.RowError
				row.Error = res.Error
				result := res
				row.Result = &result
				upgrade = res.UpgradeRequired
			default:
				row.Status = model.RowComplete
				result := res
				row.Result = &result
			}
			if upgrade {
				s.State = StateAborted
				s.UpgradeRequired = true
			}
		})

		if upgrade {
			rn.logger.Info("batch stopped: upgrade required", slog.Int("item", i), slog.Int("total", len(tasks)))
			return r.result(), nil
		}
	}

	r.update(func(s *Snapshot) {
		s.State = StateComplete
		s.Current = len(tasks) - 1
	})
	return r.result(), nil
}

// analyzeOne runs the call with a cosmetic progress bar beside it.
func (rn *Runner) analyzeOne(ctx context.Context, r *run, task model.AnalysisTask) (model.AnalysisResult, error) {
	sim := progress.New(rn.clock, progress.DocumentTarget)
	unsub := sim.Subscribe(func(p int) {
		r.update(func(s *Snapshot) { s.Progress = p })
	})
	defer unsub()

	simCtx, stop := context.WithCancel(ctx)
	defer stop()
	sim.Start(simCtx)

	res, err := rn.analyzer.Analyze(ctx, task)
	if err == nil && res.Success {
		sim.Succeed()
	} else {
		sim.Fail()
	}
	return res, err
}

func (r *run) result() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.clone()
}

func displayName(t model.AnalysisTask, i int) string {
	if t.FileName != "" {
		return t.FileName
	}
	return fmt.Sprintf("Item %d", i+1)
}
