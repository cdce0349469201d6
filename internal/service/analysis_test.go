package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/batch"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/ratelimit"
	"github.com/sakif/leaseshield/internal/repository"
)

// fakeAnalyzer returns res for every call. If gate is set, each call blocks
// until gate is closed.
type fakeAnalyzer struct {
	mu      sync.Mutex
	res     model.AnalysisResult
	err     error
	calls   int
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, _ model.AnalysisTask) (model.AnalysisResult, error) {
	f.mu.Lock()
	f.calls++
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.AnalysisResult{}, ctx.Err()
		}
	}
	return f.res, f.err
}

func successResult() model.AnalysisResult {
	landlord := "Jane"
	return model.AnalysisResult{
		Success:       true,
		ExtractedData: map[string]*string{"Landlord_Name": &landlord},
		Risks:         []string{"High late fee"},
		Score:         90,
	}
}

func TestAnalysisService_SavesWithBackendID(t *testing.T) {
	db := newTestDB(t)
	u := createUser(t, db, "a@example.com")
	res := successResult()
	res.SavedID = "lease-42"
	svc := NewAnalysisService(&fakeAnalyzer{res: res}, db, ratelimit.NewMemoryGuard(), discardLogger())

	got, err := svc.Submit(signedIn(u), model.FileTask("lease.pdf", "application/pdf", []byte("%PDF")))
	require.NoError(t, err)
	assert.Equal(t, "lease-42", got.SavedID)

	saved, err := svc.Get(context.Background(), u.ID, "lease-42")
	require.NoError(t, err)
	assert.Equal(t, "lease.pdf", saved.FileName)
	assert.Equal(t, 90, saved.Result.Score)
}

func TestAnalysisService_AssignsLocalID(t *testing.T) {
	db := newTestDB(t)
	u := createUser(t, db, "a@example.com")
	svc := NewAnalysisService(&fakeAnalyzer{res: successResult()}, db, ratelimit.NewMemoryGuard(), discardLogger())

	got, err := svc.Submit(signedIn(u), model.TextTask("lease text"))
	require.NoError(t, err)
	require.NotEmpty(t, got.SavedID)

	list, err := svc.List(context.Background(), u.ID, repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, got.SavedID, list[0].ID)
}

func TestAnalysisService_FailuresAreNotSaved(t *testing.T) {
	db := newTestDB(t)
	u := createUser(t, db, "a@example.com")
	api := &fakeAnalyzer{res: model.AnalysisResult{Error: "Analysis failed with status: 500"}}
	svc := NewAnalysisService(api, db, ratelimit.NewMemoryGuard(), discardLogger())

	got, err := svc.Submit(signedIn(u), model.TextTask("lease text"))
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.Empty(t, got.SavedID)

	list, err := svc.List(context.Background(), u.ID, repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAnalysisService_OwnerOnly(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "owner@example.com")
	other := createUser(t, db, "other@example.com")
	svc := NewAnalysisService(&fakeAnalyzer{res: successResult()}, db, ratelimit.NewMemoryGuard(), discardLogger())

	got, err := svc.Submit(signedIn(owner), model.TextTask("lease text"))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), other.ID, got.SavedID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAnalysisService_RequiresSession(t *testing.T) {
	svc := NewAnalysisService(&fakeAnalyzer{}, newTestDB(t), ratelimit.NewMemoryGuard(), discardLogger())
	_, err := svc.Submit(context.Background(), model.TextTask("x"))
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestAnalysisService_OneSubmissionAtATime(t *testing.T) {
	db := newTestDB(t)
	u := createUser(t, db, "a@example.com")
	api := &fakeAnalyzer{res: successResult(), gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	svc := NewAnalysisService(api, db, ratelimit.NewMemoryGuard(), discardLogger())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(signedIn(u), model.TextTask("first"))
		done <- err
	}()
	<-api.entered

	_, err := svc.Submit(signedIn(u), model.TextTask("second"))
	assert.ErrorIs(t, err, apperror.ErrConflict)

	close(api.gate)
	require.NoError(t, <-done)

	api.mu.Lock()
	api.entered = nil
	api.mu.Unlock()
	_, err = svc.Submit(signedIn(u), model.TextTask("third"))
	assert.NoError(t, err)
}

func TestBatchService_GuardHeldUntilFinished(t *testing.T) {
	db := newTestDB(t)
	u := createUser(t, db, "a@example.com")
	api := &fakeAnalyzer{res: successResult(), gate: make(chan struct{})}
	analyses := NewAnalysisService(api, db, ratelimit.NewMemoryGuard(), discardLogger())
	registry := batch.NewRegistry(batch.NewRunner(analyses, clockwork.NewRealClock(), discardLogger()), nil, time.Hour, discardLogger())
	svc := NewBatchService(registry, ratelimit.NewMemoryGuard(), discardLogger())
	ctx := signedIn(u)
	tasks := []model.AnalysisTask{model.TextTask("one"), model.TextTask("two")}

	id, err := svc.Start(ctx, tasks)
	require.NoError(t, err)

	_, err = svc.Start(ctx, tasks)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	close(api.gate)
	done, err := registry.Done(id, u.ID)
	require.NoError(t, err)
	<-done

	snap, err := registry.Snapshot(id, u.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.StateComplete, snap.State)
	for _, row := range snap.Rows {
		require.NotNil(t, row.Result)
		assert.NotEmpty(t, row.Result.SavedID)
	}

	assert.Eventually(t, func() bool {
		id, err := svc.Start(ctx, tasks[:1])
		return err == nil && id != ""
	}, time.Second, 10*time.Millisecond)
}

func TestBatchService_RejectsOversizedBeforeGuard(t *testing.T) {
	registry := batch.NewRegistry(batch.NewRunner(&fakeAnalyzer{}, nil, discardLogger()), nil, time.Hour, discardLogger())
	svc := NewBatchService(registry, ratelimit.NewMemoryGuard(), discardLogger())
	u := &model.User{ID: "u1", Email: "a@example.com"}

	tasks := make([]model.AnalysisTask, 6)
	for i := range tasks {
		tasks[i] = model.TextTask("x")
	}
	_, err := svc.Start(signedIn(u), tasks)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Start(context.Background(), tasks[:1])
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}
