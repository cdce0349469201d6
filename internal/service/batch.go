package service

import (
	"context"
	"log/slog"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/batch"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/ratelimit"
)

// BatchService starts background batches, one per user at a time.
type BatchService struct {
	registry *batch.Registry
	guard    ratelimit.Guard
	logger   *slog.Logger
}

func NewBatchService(registry *batch.Registry, guard ratelimit.Guard, logger *slog.Logger) *BatchService {
	return &BatchService{registry: registry, guard: guard, logger: logger}
}

// Start validates the size before taking the guard, then holds the guard
// until the batch reaches a terminal state.
func (s *BatchService) Start(ctx context.Context, tasks []model.AnalysisTask) (string, error) {
	sess := auth.SessionFromContext(ctx)
	if !sess.Present {
		return "", apperror.Unauthorized("sign in required")
	}
	if err := batch.CheckSize(len(tasks)); err != nil {
		return "", err
	}

	release, err := s.guard.Acquire(ctx, sess.UserID, KindBatch)
	if err != nil {
		return "", err
	}

	id, err := s.registry.Start(sess, tasks)
	if err != nil {
		release()
		return "", err
	}
	done, err := s.registry.Done(id, sess.UserID)
	if err != nil {
		release()
		return id, nil
	}
	go func() {
		<-done
		release()
	}()

	s.logger.Info("batch started",
		slog.String("batch_id", id),
		slog.String("user_id", sess.UserID),
		slog.Int("items", len(tasks)),
	)
	return id, nil
}

func (s *BatchService) Registry() *batch.Registry {
	return s.registry
}
