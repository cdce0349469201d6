// Package repository declares the persistence boundaries. Services depend on
// these interfaces; internal/repository/sqlite implements them.
package repository

import (
	"context"

	"github.com/sakif/leaseshield/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	UpsertGoogleUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context, opts ListOptions) ([]model.User, error)
}

// ProfileRepository stores subscription profiles keyed by user id.
// GetOrCreateProfile applies the lazy free-tier default.
type ProfileRepository interface {
	GetOrCreateProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, update model.ProfileUpdate) (*model.Profile, error)
}

type AnalysisRepository interface {
	SaveAnalysis(ctx context.Context, a *model.SavedAnalysis) error
	GetAnalysis(ctx context.Context, id string) (*model.SavedAnalysis, error)
	ListAnalyses(ctx context.Context, userID string, opts ListOptions) ([]model.SavedAnalysis, error)
}
