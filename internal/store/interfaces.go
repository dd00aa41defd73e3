package store

import (
	"context"
	"errors"
	"time"

	"appideas.app/engine/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// AnalysisStore defines the contract for persisted analysis results
type AnalysisStore interface {
	Create(ctx context.Context, analysis *model.Analysis) error
	GetByID(ctx context.Context, id int64) (*model.Analysis, error)
	GetBySlug(ctx context.Context, slug string) (*model.Analysis, error)
	// LatestForSubject returns the newest analysis of the subject created after since.
	LatestForSubject(ctx context.Context, kind model.SubjectKind, subjectID string, since time.Time) (*model.Analysis, error)
	// ListByUser returns analyses the user produced or was served from cache.
	ListByUser(ctx context.Context, userID int64, limit int32) ([]model.Analysis, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// TokenUsageStore defines the contract for per-call cost records
type TokenUsageStore interface {
	InsertBatch(ctx context.Context, analysisID int64, records []model.TokenUsageRecord) error
	ListByAnalysis(ctx context.Context, analysisID int64) ([]model.TokenUsageRecord, error)
}

// RunStore defines the contract for analysis run bookkeeping
type RunStore interface {
	Create(ctx context.Context, run *model.AnalysisRun) error
	GetByID(ctx context.Context, id int64) (*model.AnalysisRun, error)
	MarkRunning(ctx context.Context, id int64) error
	Finish(ctx context.Context, id int64, status model.RunStatus, analysisID *int64, errMsg *string) error
	// ExistsForUserAndAnalysis reports whether the user has a run that finished
	// with the analysis, which is how cache hits share another user's result.
	ExistsForUserAndAnalysis(ctx context.Context, userID, analysisID int64) (bool, error)
}

// UserStore defines the contract for users and their plan usage
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// Ensure returns the user, creating a free-plan row on first sight.
	Ensure(ctx context.Context, id int64) (*model.User, error)
	SetPlan(ctx context.Context, id int64, plan model.Plan) error
	IncrementUsage(ctx context.Context, id int64) error
	// ResetUsage zeroes the counters of users whose period started before the cutoff.
	ResetUsage(ctx context.Context, before time.Time) (int64, error)
}
