package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"appideas.app/engine/core/db"
	"appideas.app/engine/internal/model"
	"github.com/jackc/pgx/v5"
)

const analysisColumns = `id, share_slug, user_id, subject_kind, subject_id, subject_name, app_metadata,
	sections, statuses, fallbacks, review_count, elapsed_seconds, total_cost_nanos, created_at`

type analysisStore struct {
	conn db.DBTX
}

func newAnalysisStore(conn db.DBTX) AnalysisStore {
	return &analysisStore{conn: conn}
}

func (s *analysisStore) Create(ctx context.Context, a *model.Analysis) error {
	sections, err := json.Marshal(a.Sections)
	if err != nil {
		return fmt.Errorf("encoding sections: %w", err)
	}
	statuses, err := json.Marshal(a.Statuses)
	if err != nil {
		return fmt.Errorf("encoding statuses: %w", err)
	}
	var app []byte
	if a.App != nil {
		if app, err = json.Marshal(a.App); err != nil {
			return fmt.Errorf("encoding app metadata: %w", err)
		}
	}
	fallbacks := a.Fallbacks
	if fallbacks == nil {
		fallbacks = []string{}
	}

	row := s.conn.QueryRow(ctx, `
		INSERT INTO analyses (id, share_slug, user_id, subject_kind, subject_id, subject_name, app_metadata,
			sections, statuses, fallbacks, review_count, elapsed_seconds, total_cost_nanos)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`,
		a.ID, a.ShareSlug, a.UserID, a.SubjectKind, a.SubjectID, a.SubjectName, app,
		sections, statuses, fallbacks, a.ReviewCount, a.ElapsedSeconds, int64(a.TotalCost),
	)
	if err := row.Scan(&a.CreatedAt); err != nil {
		return fmt.Errorf("inserting analysis: %w", err)
	}
	return nil
}

func (s *analysisStore) GetByID(ctx context.Context, id int64) (*model.Analysis, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id = $1`, id)
	return scanAnalysis(row)
}

func (s *analysisStore) GetBySlug(ctx context.Context, slug string) (*model.Analysis, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE share_slug = $1`, slug)
	return scanAnalysis(row)
}

func (s *analysisStore) LatestForSubject(ctx context.Context, kind model.SubjectKind, subjectID string, since time.Time) (*model.Analysis, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT `+analysisColumns+` FROM analyses
		WHERE subject_kind = $1 AND subject_id = $2 AND created_at > $3
		ORDER BY created_at DESC
		LIMIT 1`,
		kind, subjectID, since,
	)
	return scanAnalysis(row)
}

func (s *analysisStore) ListByUser(ctx context.Context, userID int64, limit int32) ([]model.Analysis, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+analysisColumns+` FROM analyses
		WHERE user_id = $1
			OR id IN (SELECT analysis_id FROM analysis_runs WHERE user_id = $1 AND analysis_id IS NOT NULL)
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	defer rows.Close()

	analyses := []model.Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, *a)
	}
	return analyses, rows.Err()
}

func (s *analysisStore) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.conn.Exec(ctx, `DELETE FROM analyses WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("deleting stale analyses: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAnalysis(row pgx.Row) (*model.Analysis, error) {
	var (
		a                  model.Analysis
		app                []byte
		sections, statuses []byte
		totalCost          int64
	)
	err := row.Scan(
		&a.ID, &a.ShareSlug, &a.UserID, &a.SubjectKind, &a.SubjectID, &a.SubjectName, &app,
		&sections, &statuses, &a.Fallbacks, &a.ReviewCount, &a.ElapsedSeconds, &totalCost, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning analysis: %w", err)
	}
	a.TotalCost = model.Cost(totalCost)

	if len(app) > 0 {
		a.App = &model.AppMetadata{}
		if err := json.Unmarshal(app, a.App); err != nil {
			return nil, fmt.Errorf("decoding app metadata: %w", err)
		}
	}
	if err := json.Unmarshal(sections, &a.Sections); err != nil {
		return nil, fmt.Errorf("decoding sections: %w", err)
	}
	if err := json.Unmarshal(statuses, &a.Statuses); err != nil {
		return nil, fmt.Errorf("decoding statuses: %w", err)
	}
	return &a, nil
}
