package store

import (
	"context"
	"fmt"

	"appideas.app/engine/core/db"
	"appideas.app/engine/internal/model"
	"github.com/jackc/pgx/v5"
)

type tokenUsageStore struct {
	conn db.DBTX
}

func newTokenUsageStore(conn db.DBTX) TokenUsageStore {
	return &tokenUsageStore{conn: conn}
}

func (s *tokenUsageStore) InsertBatch(ctx context.Context, analysisID int64, records []model.TokenUsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			analysisID, r.CallNumber, r.Stage, r.InputTokens, r.OutputTokens, r.SystemTokens, int64(r.Cost), r.Timestamp,
		})
	}

	_, err := s.conn.Exec(ctx, insertTokenUsageSQL(len(rows)), flatten(rows)...)
	if err != nil {
		return fmt.Errorf("inserting token usage: %w", err)
	}
	return nil
}

func (s *tokenUsageStore) ListByAnalysis(ctx context.Context, analysisID int64) ([]model.TokenUsageRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT call_number, stage, input_tokens, output_tokens, system_tokens, cost_nanos, called_at
		FROM analysis_token_usage
		WHERE analysis_id = $1
		ORDER BY call_number`,
		analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing token usage: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TokenUsageRecord, error) {
		var (
			r    model.TokenUsageRecord
			cost int64
		)
		err := row.Scan(&r.CallNumber, &r.Stage, &r.InputTokens, &r.OutputTokens, &r.SystemTokens, &cost, &r.Timestamp)
		r.Cost = model.Cost(cost)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning token usage: %w", err)
	}
	return records, nil
}

const tokenUsageColumns = 8

func insertTokenUsageSQL(n int) string {
	sql := `INSERT INTO analysis_token_usage
		(analysis_id, call_number, stage, input_tokens, output_tokens, system_tokens, cost_nanos, called_at) VALUES `
	for i := 0; i < n; i++ {
		if i > 0 {
			sql += ", "
		}
		base := i * tokenUsageColumns
		sql += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
	}
	return sql
}

func flatten(rows [][]any) []any {
	out := make([]any, 0, len(rows)*tokenUsageColumns)
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
