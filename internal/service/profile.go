package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/profile"
	"github.com/sakif/leaseshield/internal/repository"
)

// ProfileService writes subscription profiles and announces every change so
// open gate streams re-evaluate.
type ProfileService struct {
	users    repository.UserRepository
	profiles repository.ProfileRepository
	notifier profile.Notifier
	logger   *slog.Logger
}

func NewProfileService(
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	notifier profile.Notifier,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{users: users, profiles: profiles, notifier: notifier, logger: logger}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.profiles.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	return p, nil
}

// Update applies a partial write from the backend webhook. A publish failure
// is logged; the write itself already succeeded.
func (s *ProfileService) Update(ctx context.Context, u model.ProfileUpdate) (*model.Profile, error) {
	if u.UserID == "" {
		return nil, apperror.ValidationFailed("userId", "userId is required")
	}
	if u.SubscriptionTier != nil && !u.SubscriptionTier.Valid() {
		return nil, apperror.ValidationFailed("subscriptionTier", fmt.Sprintf("unknown tier %q", *u.SubscriptionTier))
	}
	if u.FreeScansUsed != nil && *u.FreeScansUsed < 0 {
		return nil, apperror.ValidationFailed("freeScansUsed", "freeScansUsed cannot be negative")
	}

	p, err := s.profiles.UpdateProfile(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("service/profile: updating %s: %w", u.UserID, err)
	}

	if err := s.notifier.Publish(ctx, u.UserID); err != nil {
		s.logger.Warn("profile change not published",
			slog.String("user_id", u.UserID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Info("profile updated",
		slog.String("user_id", u.UserID),
		slog.String("tier", string(p.SubscriptionTier)),
	)
	return p, nil
}

// SetTier is the admin action. The user must exist.
func (s *ProfileService) SetTier(ctx context.Context, userID string, tier model.Tier) (*model.Profile, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	return s.Update(ctx, model.ProfileUpdate{UserID: userID, SubscriptionTier: &tier})
}

// UserSummary is one row of the admin user table.
type UserSummary struct {
	User    model.User     `json:"user"`
	Profile *model.Profile `json:"profile"`
}

func (s *ProfileService) ListUsers(ctx context.Context, opts repository.ListOptions) ([]UserSummary, error) {
	users, err := s.users.ListUsers(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/profile: listing users: %w", err)
	}
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		p, err := s.profiles.GetOrCreateProfile(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("service/profile: profile for %s: %w", u.ID, err)
		}
		out = append(out, UserSummary{User: u, Profile: p})
	}
	return out, nil
}
