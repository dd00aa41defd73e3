package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"appideas.app/engine/core/config"
	"appideas.app/engine/internal/model"
	"appideas.app/engine/internal/store"
)

type EntitlementService interface {
	CanStartRun(ctx context.Context, userID int64) (bool, error)
	IncrementUsage(ctx context.Context, userID int64) error
	Usage(ctx context.Context, userID int64) (*model.Usage, error)
	// ResetMonthly zeroes counters whose period began before the current month.
	ResetMonthly(ctx context.Context) (int64, error)
}

type entitlementService struct {
	users store.UserStore
	plans config.PlansConfig
	now   func() time.Time
}

func NewEntitlementService(users store.UserStore, plans config.PlansConfig) EntitlementService {
	return &entitlementService{users: users, plans: plans, now: time.Now}
}

func (s *entitlementService) limit(plan model.Plan) int {
	if plan == model.PlanPro {
		return s.plans.ProRunsPerMonth
	}
	return s.plans.FreeRunsPerMonth
}

func (s *entitlementService) Usage(ctx context.Context, userID int64) (*model.Usage, error) {
	user, err := s.users.Ensure(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return &model.Usage{
		Plan:         user.Plan,
		RunsUsed:     user.RunsUsed,
		Limit:        s.limit(user.Plan),
		UsageResetAt: user.UsageResetAt,
	}, nil
}

func (s *entitlementService) CanStartRun(ctx context.Context, userID int64) (bool, error) {
	usage, err := s.Usage(ctx, userID)
	if err != nil {
		return false, err
	}
	if usage.Remaining() == 0 {
		slog.InfoContext(ctx, "run limit reached", "plan", usage.Plan, "runs_used", usage.RunsUsed, "limit", usage.Limit)
		return false, nil
	}
	return true, nil
}

func (s *entitlementService) IncrementUsage(ctx context.Context, userID int64) error {
	if err := s.users.IncrementUsage(ctx, userID); err != nil {
		return fmt.Errorf("incrementing usage: %w", err)
	}
	return nil
}

func (s *entitlementService) ResetMonthly(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	n, err := s.users.ResetUsage(ctx, monthStart)
	if err != nil {
		return 0, fmt.Errorf("resetting usage: %w", err)
	}
	slog.InfoContext(ctx, "monthly usage reset", "users", n, "period_start", monthStart)
	return n, nil
}
