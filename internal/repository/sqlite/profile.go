package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

// GetOrCreateProfile returns the user's profile, inserting the free-tier
// default the first time it is observed. INSERT OR IGNORE keeps two
// concurrent first reads from racing into a constraint error.
func (db *DB) GetOrCreateProfile(ctx context.Context, userID string) (*model.Profile, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user id is required")
	}

	def := model.DefaultProfile(userID)
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO profiles (user_id, subscription_tier, free_scans_used, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		def.UserID, string(def.SubscriptionTier), def.FreeScansUsed, def.CreatedAt, def.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating default profile for %s: %w", userID, err)
	}

	return db.getProfile(ctx, userID)
}

// UpdateProfile applies a partial update, creating the profile first when
// the backend writes before the user ever signed in.
func (db *DB) UpdateProfile(ctx context.Context, update model.ProfileUpdate) (*model.Profile, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning profile update: %w", err)
	}
	defer tx.Rollback()

	def := model.DefaultProfile(update.UserID)
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO profiles (user_id, subscription_tier, free_scans_used, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		def.UserID, string(def.SubscriptionTier), def.FreeScansUsed, def.CreatedAt, def.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("sqlite: ensuring profile %s: %w", update.UserID, err)
	}

	p, err := scanProfile(tx.QueryRowContext(ctx, profileQuery, update.UserID))
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading profile %s: %w", update.UserID, err)
	}

	update.Apply(p)
	p.UpdatedAt = time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE profiles SET subscription_tier = ?, free_scans_used = ?, max_allowed_scans = ?, updated_at = ?
		 WHERE user_id = ?`,
		string(p.SubscriptionTier), p.FreeScansUsed, nullInt(p.MaxAllowedScans), p.UpdatedAt, p.UserID,
	); err != nil {
		return nil, fmt.Errorf("sqlite: updating profile %s: %w", update.UserID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing profile %s: %w", update.UserID, err)
	}
	return p, nil
}

const profileQuery = `SELECT user_id, subscription_tier, free_scans_used, max_allowed_scans, created_at, updated_at
	FROM profiles WHERE user_id = ?`

func (db *DB) getProfile(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := scanProfile(db.conn.QueryRowContext(ctx, profileQuery, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", userID, err)
	}
	return p, nil
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	var (
		p    model.Profile
		tier string
		max  sql.NullInt64
	)
	if err := row.Scan(&p.UserID, &tier, &p.FreeScansUsed, &max, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.SubscriptionTier = model.Tier(tier)
	if max.Valid {
		n := int(max.Int64)
		p.MaxAllowedScans = &n
	}
	return &p, nil
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
