package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"appideas.app/engine/common/logger"
	"appideas.app/engine/internal/model"
	"appideas.app/engine/internal/pipeline"
)

// SourceFetcher resolves app metadata and its reviews.
type SourceFetcher interface {
	Lookup(ctx context.Context, appID, country string) (*model.AppMetadata, error)
	Reviews(ctx context.Context, appID, country string) ([]model.Review, error)
}

// PipelineRunner executes an ordered stage list against a context.
type PipelineRunner interface {
	Run(ctx context.Context, ac *pipeline.AnalysisContext, stages []pipeline.Stage) error
}

// AnalyzerDeps wires an Analyzer. Cache, Entitlements and Results are
// optional; a nil dependency skips its step, which is how the local CLI runs.
type AnalyzerDeps struct {
	Fetcher      SourceFetcher
	Pipeline     PipelineRunner
	Rates        pipeline.Rates
	Cache        ResultCache
	Entitlements EntitlementService
	Results      ResultStore
}

type AnalyzeRequest struct {
	UserID  int64
	RunID   int64
	Subject model.Subject
}

type AnalyzeResult struct {
	Analysis *model.Analysis
	Cached   bool
	// Saved is false when persistence was skipped or failed.
	Saved bool
}

// Analyzer runs one subject end to end: cache, entitlement, fetch, pipeline,
// persistence and usage accounting.
type Analyzer struct {
	deps AnalyzerDeps
	now  func() time.Time
}

func NewAnalyzer(deps AnalyzerDeps) *Analyzer {
	return &Analyzer{deps: deps, now: time.Now}
}

func (a *Analyzer) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	start := a.now()
	subject := req.Subject

	if err := validateSubject(subject); err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{SubjectID: logger.Ptr(subject.ID())})

	if a.deps.Cache != nil {
		cached, err := a.deps.Cache.Get(ctx, subject)
		if err != nil {
			slog.WarnContext(ctx, "cache lookup failed, running fresh analysis", "error", err)
		} else if cached != nil {
			slog.InfoContext(ctx, "returning cached analysis", "analysis_id", cached.ID, "created_at", cached.CreatedAt)
			return &AnalyzeResult{Analysis: cached, Cached: true, Saved: true}, nil
		}
	}

	if a.deps.Entitlements != nil {
		ok, err := a.deps.Entitlements.CanStartRun(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("checking entitlement: %w", err)
		}
		if !ok {
			return nil, ErrEntitlementExceeded
		}
	}

	ac, err := a.prepare(ctx, subject)
	if err != nil {
		return nil, err
	}
	ac.RunID = req.RunID

	if err := a.deps.Pipeline.Run(ctx, ac, pipeline.Stages(subject.Kind)); err != nil {
		return nil, fmt.Errorf("running pipeline: %w", err)
	}

	analysis := ac.Analysis()
	analysis.UserID = req.UserID
	analysis.ElapsedSeconds = a.now().Sub(start).Seconds()

	result := &AnalyzeResult{Analysis: analysis}
	if a.deps.Results != nil {
		if _, err := a.deps.Results.SaveResult(ctx, analysis); err != nil {
			slog.ErrorContext(ctx, "failed to save analysis", "error", err)
		} else {
			result.Saved = true
			if a.deps.Cache != nil {
				a.deps.Cache.Put(analysis)
			}
		}
	}

	// A completed run is billed even when saving it failed.
	if a.deps.Entitlements != nil {
		if err := a.deps.Entitlements.IncrementUsage(ctx, req.UserID); err != nil {
			slog.ErrorContext(ctx, "failed to record usage", "error", err)
		}
	}

	slog.InfoContext(ctx, "analysis finished",
		"analysis_id", analysis.ID,
		"saved", result.Saved,
		"total_cost", analysis.TotalCost.String(),
		"elapsed_seconds", analysis.ElapsedSeconds)
	return result, nil
}

// prepare resolves the subject and builds the run context.
func (a *Analyzer) prepare(ctx context.Context, subject model.Subject) (*pipeline.AnalysisContext, error) {
	if subject.Kind == model.SubjectKindIdea {
		return pipeline.NewAnalysisContext(subject, strings.TrimSpace(subject.IdeaText), 0, a.deps.Rates), nil
	}

	app, err := a.deps.Fetcher.Lookup(ctx, subject.AppID, subject.Country)
	if err != nil {
		return nil, fmt.Errorf("resolving app: %w", err)
	}
	subject.App = app

	reviews, err := a.deps.Fetcher.Reviews(ctx, subject.AppID, subject.Country)
	if err != nil {
		return nil, fmt.Errorf("fetching reviews: %w", err)
	}
	slog.InfoContext(ctx, "fetched reviews", "app", app.Name, "reviews", len(reviews))

	return pipeline.NewAnalysisContext(subject, pipeline.Corpus(reviews), len(reviews), a.deps.Rates), nil
}

func validateSubject(s model.Subject) error {
	switch s.Kind {
	case model.SubjectKindApp:
		if strings.TrimSpace(s.AppID) == "" {
			return ErrAppNotFound
		}
	case model.SubjectKindIdea:
		if strings.TrimSpace(s.IdeaText) == "" {
			return ErrEmptyIdea
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedSubject, s.Kind)
	}
	return nil
}
