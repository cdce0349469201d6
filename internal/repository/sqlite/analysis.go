package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/repository"
)

var _ repository.AnalysisRepository = (*DB)(nil)

// SaveAnalysis stores a result under a.ID, replacing an earlier copy with
// the same id (the backend may return the same savedId on a re-run).
func (db *DB) SaveAnalysis(ctx context.Context, a *model.SavedAnalysis) error {
	if a.ID == "" {
		return apperror.ValidationFailed("id", "analysis id is required")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	body, err := json.Marshal(a.Result)
	if err != nil {
		return fmt.Errorf("sqlite: encoding analysis %s: %w", a.ID, err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO analyses (id, user_id, file_name, result, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET file_name = excluded.file_name, result = excluded.result`,
		a.ID, a.UserID, a.FileName, string(body), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving analysis %s: %w", a.ID, err)
	}
	return nil
}

func (db *DB) GetAnalysis(ctx context.Context, id string) (*model.SavedAnalysis, error) {
	a, err := scanAnalysis(db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, file_name, result, created_at FROM analyses WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("analysis", id)
		}
		return nil, fmt.Errorf("sqlite: getting analysis %s: %w", id, err)
	}
	return a, nil
}

// ListAnalyses returns the user's analyses, newest first.
func (db *DB) ListAnalyses(ctx context.Context, userID string, opts repository.ListOptions) ([]model.SavedAnalysis, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, file_name, result, created_at FROM analyses
		 WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing analyses for %s: %w", userID, err)
	}
	defer rows.Close()

	out := []model.SavedAnalysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning analysis: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAnalysis(row rowScanner) (*model.SavedAnalysis, error) {
	var (
		a    model.SavedAnalysis
		body string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.FileName, &body, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(body), &a.Result); err != nil {
		return nil, fmt.Errorf("decoding analysis %s: %w", a.ID, err)
	}
	return &a, nil
}
