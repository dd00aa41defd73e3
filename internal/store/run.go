package store

import (
	"context"
	"errors"
	"fmt"

	"appideas.app/engine/core/db"
	"appideas.app/engine/internal/model"
	"github.com/jackc/pgx/v5"
)

type runStore struct {
	conn db.DBTX
}

func newRunStore(conn db.DBTX) RunStore {
	return &runStore{conn: conn}
}

func (s *runStore) Create(ctx context.Context, run *model.AnalysisRun) error {
	if run.Status == "" {
		run.Status = model.RunStatusQueued
	}
	row := s.conn.QueryRow(ctx, `
		INSERT INTO analysis_runs (id, user_id, subject_kind, subject_id, idea_text, idea_name, country, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		run.ID, run.UserID, run.SubjectKind, run.SubjectID, run.IdeaText, run.IdeaName, run.Country, run.Status,
	)
	if err := row.Scan(&run.CreatedAt); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

func (s *runStore) GetByID(ctx context.Context, id int64) (*model.AnalysisRun, error) {
	var r model.AnalysisRun
	err := s.conn.QueryRow(ctx, `
		SELECT id, user_id, subject_kind, subject_id, idea_text, idea_name, country, status,
			analysis_id, error, created_at, started_at, finished_at
		FROM analysis_runs WHERE id = $1`, id,
	).Scan(
		&r.ID, &r.UserID, &r.SubjectKind, &r.SubjectID, &r.IdeaText, &r.IdeaName, &r.Country, &r.Status,
		&r.AnalysisID, &r.Error, &r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return &r, nil
}

func (s *runStore) MarkRunning(ctx context.Context, id int64) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE analysis_runs SET status = $2, started_at = now()
		WHERE id = $1`, id, model.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("marking run running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *runStore) Finish(ctx context.Context, id int64, status model.RunStatus, analysisID *int64, errMsg *string) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE analysis_runs SET status = $2, analysis_id = $3, error = $4, finished_at = now()
		WHERE id = $1`, id, status, analysisID, errMsg)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *runStore) ExistsForUserAndAnalysis(ctx context.Context, userID, analysisID int64) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM analysis_runs WHERE user_id = $1 AND analysis_id = $2)`,
		userID, analysisID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking run for analysis: %w", err)
	}
	return exists, nil
}
