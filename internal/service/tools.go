package service

import (
	"context"
	"log/slog"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/ratelimit"
)

// ToolsAPI is the part of the analysis backend behind the secondary tools.
type ToolsAPI interface {
	AnalyzeImage(ctx context.Context, img model.Upload) (model.ImageAnalysis, error)
	ScanExpenses(ctx context.Context, docs []model.Upload) (model.ExpenseScan, error)
	InspectPhotos(ctx context.Context, photos []model.Upload) (model.InspectionReport, error)
	AgentAnalyze(ctx context.Context, prefs model.TenantPreferences, docs []model.Upload) (model.AgentReport, error)
	Chat(ctx context.Context, message, chatModel string) (model.ChatReply, error)
	CreateCheckoutSession(ctx context.Context, planID string) (string, error)
}

// ToolsService fronts the secondary tools. Uploads are guarded one at a
// time per user and kind; chat is capped per user per day.
type ToolsService struct {
	api    ToolsAPI
	guard  ratelimit.Guard
	chat   ratelimit.Limiter
	logger *slog.Logger
}

func NewToolsService(api ToolsAPI, guard ratelimit.Guard, chat ratelimit.Limiter, logger *slog.Logger) *ToolsService {
	return &ToolsService{api: api, guard: guard, chat: chat, logger: logger}
}

func (s *ToolsService) AnalyzeImage(ctx context.Context, img model.Upload) (model.ImageAnalysis, error) {
	return guarded(ctx, s.guard, KindImage, func() (model.ImageAnalysis, error) {
		return s.api.AnalyzeImage(ctx, img)
	})
}

func (s *ToolsService) ScanExpenses(ctx context.Context, docs []model.Upload) (model.ExpenseScan, error) {
	return guarded(ctx, s.guard, KindExpense, func() (model.ExpenseScan, error) {
		return s.api.ScanExpenses(ctx, docs)
	})
}

func (s *ToolsService) InspectPhotos(ctx context.Context, photos []model.Upload) (model.InspectionReport, error) {
	return guarded(ctx, s.guard, KindInspect, func() (model.InspectionReport, error) {
		return s.api.InspectPhotos(ctx, photos)
	})
}

func (s *ToolsService) AgentAnalyze(ctx context.Context, prefs model.TenantPreferences, docs []model.Upload) (model.AgentReport, error) {
	return guarded(ctx, s.guard, KindAgent, func() (model.AgentReport, error) {
		return s.api.AgentAnalyze(ctx, prefs, docs)
	})
}

// Chat enforces the local daily cap before the backend sees the message.
func (s *ToolsService) Chat(ctx context.Context, message, chatModel string) (model.ChatReply, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return model.ChatReply{}, apperror.Unauthorized("sign in required")
	}
	if !s.chat.Allow(ctx, "chat:"+userID) {
		s.logger.Info("chat limit reached", slog.String("user_id", userID))
		return model.ChatReply{}, apperror.RateLimited("Daily message limit reached.")
	}
	return s.api.Chat(ctx, message, chatModel)
}

func (s *ToolsService) Checkout(ctx context.Context, planID string) (string, error) {
	if _, ok := auth.UserIDFromContext(ctx); !ok {
		return "", apperror.Unauthorized("sign in required")
	}
	return s.api.CreateCheckoutSession(ctx, planID)
}

func guarded[T any](ctx context.Context, guard ratelimit.Guard, kind string, fn func() (T, error)) (T, error) {
	var zero T
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return zero, apperror.Unauthorized("sign in required")
	}
	release, err := guard.Acquire(ctx, userID, kind)
	if err != nil {
		return zero, err
	}
	defer release()
	return fn()
}
