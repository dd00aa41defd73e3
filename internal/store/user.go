package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"appideas.app/engine/core/db"
	"appideas.app/engine/internal/model"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, plan, runs_used, usage_reset_at, created_at, updated_at`

type userStore struct {
	conn db.DBTX
}

func newUserStore(conn db.DBTX) UserStore {
	return &userStore{conn: conn}
}

func (s *userStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(s.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *userStore) Ensure(ctx context.Context, id int64) (*model.User, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	return scanUser(s.conn.QueryRow(ctx, `
		INSERT INTO users (id, plan) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING `+userColumns, id, model.PlanFree))
}

func (s *userStore) SetPlan(ctx context.Context, id int64, plan model.Plan) error {
	tag, err := s.conn.Exec(ctx, `UPDATE users SET plan = $2, updated_at = now() WHERE id = $1`, id, plan)
	if err != nil {
		return fmt.Errorf("setting plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) IncrementUsage(ctx context.Context, id int64) error {
	tag, err := s.conn.Exec(ctx, `UPDATE users SET runs_used = runs_used + 1, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("incrementing usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) ResetUsage(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.conn.Exec(ctx, `
		UPDATE users SET runs_used = 0, usage_reset_at = now(), updated_at = now()
		WHERE usage_reset_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("resetting usage: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Plan, &u.RunsUsed, &u.UsageResetAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}
