package service

import (
	"context"
	"fmt"
	"log/slog"

	"appideas.app/engine/common"
	"appideas.app/engine/common/id"
	"appideas.app/engine/internal/model"
)

// ResultStore persists finished analyses together with their cost records.
type ResultStore interface {
	SaveResult(ctx context.Context, analysis *model.Analysis) (model.SaveResult, error)
}

type resultStore struct {
	txRunner TxRunner
}

func NewResultStore(txRunner TxRunner) ResultStore {
	return &resultStore{txRunner: txRunner}
}

// SaveResult assigns the analysis its id and share slug, then writes it and
// its token usage in one transaction.
func (s *resultStore) SaveResult(ctx context.Context, a *model.Analysis) (model.SaveResult, error) {
	if a.ID == 0 {
		a.ID = id.New()
	}
	if a.ShareSlug == "" {
		a.ShareSlug = common.ShareSlug(a.SubjectName)
	}

	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		if err := stores.Analyses().Create(ctx, a); err != nil {
			return err
		}
		return stores.TokenUsage().InsertBatch(ctx, a.ID, a.TokenUsage)
	})
	if err != nil {
		return model.SaveResult{}, fmt.Errorf("saving analysis: %w", err)
	}

	slog.InfoContext(ctx, "analysis saved", "analysis_id", a.ID, "share_slug", a.ShareSlug, "calls", len(a.TokenUsage))
	return model.SaveResult{ID: a.ID, ShareSlug: a.ShareSlug}, nil
}
