package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/ratelimit"
	"github.com/sakif/leaseshield/internal/repository"
)

// Task kinds used for the one-at-a-time guard.
const (
	KindAnalysis = "analysis"
	KindBatch    = "batch"
	KindImage    = "image analysis"
	KindExpense  = "expense scan"
	KindInspect  = "photo inspection"
	KindAgent    = "agent analysis"
)

// Analyzer is the upstream lease analysis call.
type Analyzer interface {
	Analyze(ctx context.Context, task model.AnalysisTask) (model.AnalysisResult, error)
}

// AnalysisService runs lease analyses and keeps successful results so the
// report pages can be reopened by id.
type AnalysisService struct {
	api      Analyzer
	analyses repository.AnalysisRepository
	guard    ratelimit.Guard
	logger   *slog.Logger
}

func NewAnalysisService(api Analyzer, analyses repository.AnalysisRepository, guard ratelimit.Guard, logger *slog.Logger) *AnalysisService {
	return &AnalysisService{api: api, analyses: analyses, guard: guard, logger: logger}
}

// Submit is a user-initiated single analysis. A second submission by the same
// user while one is running gets a conflict.
func (s *AnalysisService) Submit(ctx context.Context, task model.AnalysisTask) (model.AnalysisResult, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return model.AnalysisResult{}, apperror.Unauthorized("sign in required")
	}
	release, err := s.guard.Acquire(ctx, userID, KindAnalysis)
	if err != nil {
		return model.AnalysisResult{}, err
	}
	defer release()

	return s.Analyze(ctx, task)
}

// Analyze calls the API and stores a successful result. The result keeps the
// backend's leaseId when it sent one; otherwise a local id is assigned. A
// storage failure is logged and the result is still returned.
func (s *AnalysisService) Analyze(ctx context.Context, task model.AnalysisTask) (model.AnalysisResult, error) {
	res, err := s.api.Analyze(ctx, task)
	if err != nil || !res.Success {
		return res, err
	}

	userID, _ := auth.UserIDFromContext(ctx)
	if res.SavedID == "" {
		res.SavedID = xid.New().String()
	}
	res.FileName = task.FileName

	saved := &model.SavedAnalysis{
		ID:        res.SavedID,
		UserID:    userID,
		FileName:  task.FileName,
		Result:    res,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.analyses.SaveAnalysis(ctx, saved); err != nil {
		s.logger.Error("saving analysis",
			slog.String("analysis_id", res.SavedID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		res.SavedID = ""
	}
	return res, nil
}

// Get returns a saved analysis to its owner. Other users get NotFound.
func (s *AnalysisService) Get(ctx context.Context, userID, id string) (*model.SavedAnalysis, error) {
	a, err := s.analyses.GetAnalysis(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/analysis: %w", err)
	}
	if a.UserID != userID {
		return nil, apperror.NotFound("analysis", id)
	}
	return a, nil
}

func (s *AnalysisService) List(ctx context.Context, userID string, opts repository.ListOptions) ([]model.SavedAnalysis, error) {
	list, err := s.analyses.ListAnalyses(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("service/analysis: listing: %w", err)
	}
	return list, nil
}
