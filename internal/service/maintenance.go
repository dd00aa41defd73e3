package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"appideas.app/engine/internal/store"
)

// MaintenanceService holds the scheduled housekeeping jobs.
type MaintenanceService interface {
	ResetMonthlyUsage(ctx context.Context) (int64, error)
	// PurgeStaleAnalyses removes analyses older than the retention window.
	PurgeStaleAnalyses(ctx context.Context) (int64, error)
}

// Persisted analyses are kept for a multiple of the cache TTL.
const retentionMultiplier = 12

type maintenanceService struct {
	analyses     store.AnalysisStore
	entitlements EntitlementService
	cacheTTL     time.Duration
	now          func() time.Time
}

func NewMaintenanceService(analyses store.AnalysisStore, entitlements EntitlementService, cacheTTL time.Duration) MaintenanceService {
	return &maintenanceService{
		analyses:     analyses,
		entitlements: entitlements,
		cacheTTL:     cacheTTL,
		now:          time.Now,
	}
}

func (s *maintenanceService) ResetMonthlyUsage(ctx context.Context) (int64, error) {
	return s.entitlements.ResetMonthly(ctx)
}

func (s *maintenanceService) PurgeStaleAnalyses(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cacheTTL * retentionMultiplier)
	n, err := s.analyses.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging analyses: %w", err)
	}
	slog.InfoContext(ctx, "purged stale analyses", "deleted", n, "cutoff", cutoff)
	return n, nil
}
