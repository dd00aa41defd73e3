package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"appideas.app/engine/common/id"
	"appideas.app/engine/common/llm"
	"appideas.app/engine/common/logger"
	"appideas.app/engine/internal/model"
	"appideas.app/engine/internal/pipeline"
	"appideas.app/engine/internal/queue"
	"appideas.app/engine/internal/store"
	"go.opentelemetry.io/otel/trace"
)

const maxListLimit = 100

// RunEvents publishes and reads a run's progress stream.
type RunEvents interface {
	Publish(ctx context.Context, evt model.RunEvent) error
	Read(ctx context.Context, runID int64, lastID string, block time.Duration) ([]queue.StatusEvent, error)
	Statuses(ctx context.Context, runID int64) (model.Statuses, error)
}

// RunObserver is told how every executed run ended.
type RunObserver interface {
	ObserveRun(kind model.SubjectKind, status model.RunStatus, cost model.Cost)
}

// RunView is a run together with its live section statuses.
type RunView struct {
	Run      *model.AnalysisRun `json:"run"`
	Statuses model.Statuses     `json:"statuses"`
}

type AnalysisService interface {
	SubmitApp(ctx context.Context, userID int64, appID, country string) (*model.AnalysisRun, error)
	SubmitIdea(ctx context.Context, userID int64, ideaText, ideaName string) (*model.AnalysisRun, error)
	// Execute runs a queued analysis. A non-nil error means the run may
	// succeed if retried; terminal failures are recorded on the run instead.
	Execute(ctx context.Context, runID int64) error
	FailRun(ctx context.Context, runID int64, reason string) error
	GetRun(ctx context.Context, userID, runID int64) (*RunView, error)
	Events(ctx context.Context, userID, runID int64, lastID string, block time.Duration) ([]queue.StatusEvent, error)
	Get(ctx context.Context, userID, analysisID int64) (*model.Analysis, error)
	GetBySlug(ctx context.Context, slug string) (*model.Analysis, error)
	List(ctx context.Context, userID int64, limit int32) ([]model.Analysis, error)
}

type AnalysisServiceDeps struct {
	Runs         store.RunStore
	Analyses     store.AnalysisStore
	TokenUsage   store.TokenUsageStore
	Entitlements EntitlementService
	Lock         RunLock
	Producer     queue.Producer
	Events       RunEvents
	Analyzer     *Analyzer
	Observer     RunObserver
	Country      string
}

type analysisService struct {
	deps AnalysisServiceDeps
}

func NewAnalysisService(deps AnalysisServiceDeps) AnalysisService {
	return &analysisService{deps: deps}
}

func (s *analysisService) SubmitApp(ctx context.Context, userID int64, appID, country string) (*model.AnalysisRun, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, ErrAppNotFound
	}
	if country == "" {
		country = s.deps.Country
	}
	return s.submit(ctx, &model.AnalysisRun{
		UserID:      userID,
		SubjectKind: model.SubjectKindApp,
		SubjectID:   appID,
		Country:     strings.ToLower(country),
	})
}

func (s *analysisService) SubmitIdea(ctx context.Context, userID int64, ideaText, ideaName string) (*model.AnalysisRun, error) {
	ideaText = strings.TrimSpace(ideaText)
	if ideaText == "" {
		return nil, ErrEmptyIdea
	}
	subject := model.Subject{Kind: model.SubjectKindIdea, IdeaText: ideaText, IdeaName: strings.TrimSpace(ideaName)}

	run := &model.AnalysisRun{
		UserID:      userID,
		SubjectKind: model.SubjectKindIdea,
		SubjectID:   subject.ID(),
		IdeaText:    &ideaText,
		Country:     s.deps.Country,
	}
	if subject.IdeaName != "" {
		run.IdeaName = &subject.IdeaName
	}
	return s.submit(ctx, run)
}

func (s *analysisService) submit(ctx context.Context, run *model.AnalysisRun) (*model.AnalysisRun, error) {
	run.ID = id.New()
	run.Status = model.RunStatusQueued
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     logger.Ptr(run.ID),
		UserID:    logger.Ptr(run.UserID),
		SubjectID: logger.Ptr(run.SubjectID),
	})

	ok, err := s.deps.Entitlements.CanStartRun(ctx, run.UserID)
	if err != nil {
		return nil, fmt.Errorf("checking entitlement: %w", err)
	}
	if !ok {
		return nil, ErrEntitlementExceeded
	}

	acquired, err := s.deps.Lock.Acquire(ctx, run.UserID, run.ID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrRunInFlight
	}

	if err := s.deps.Runs.Create(ctx, run); err != nil {
		s.release(ctx, run)
		return nil, fmt.Errorf("creating run: %w", err)
	}

	task := queue.Task{TaskType: queue.TaskTypeAnalysisRun, RunID: run.ID, UserID: run.UserID}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		task.TraceID = logger.Ptr(sc.TraceID().String())
	}
	if err := s.deps.Producer.Enqueue(ctx, task); err != nil {
		msg := "could not queue analysis"
		if finishErr := s.deps.Runs.Finish(ctx, run.ID, model.RunStatusFailed, nil, &msg); finishErr != nil {
			slog.ErrorContext(ctx, "failed to mark unqueued run failed", "error", finishErr)
		}
		s.release(ctx, run)
		return nil, fmt.Errorf("enqueueing run: %w", err)
	}

	s.publish(ctx, model.RunEvent{Type: model.RunEventRun, RunID: run.ID, RunStatus: model.RunStatusQueued})
	slog.InfoContext(ctx, "analysis run submitted", "kind", run.SubjectKind)
	return run, nil
}

func (s *analysisService) Execute(ctx context.Context, runID int64) error {
	run, err := s.deps.Runs.GetByID(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		slog.WarnContext(ctx, "run not found, dropping", "run_id", runID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     logger.Ptr(run.ID),
		UserID:    logger.Ptr(run.UserID),
		SubjectID: logger.Ptr(run.SubjectID),
	})

	if run.Status.Terminal() {
		slog.InfoContext(ctx, "run already finished, skipping", "status", run.Status)
		return nil
	}

	acquired, err := s.deps.Lock.Acquire(ctx, run.UserID, run.ID)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrRunInFlight
	}

	if err := s.deps.Runs.MarkRunning(ctx, run.ID); err != nil {
		return fmt.Errorf("marking run running: %w", err)
	}
	s.publish(ctx, model.RunEvent{Type: model.RunEventRun, RunID: run.ID, RunStatus: model.RunStatusRunning})

	result, err := s.deps.Analyzer.Analyze(ctx, AnalyzeRequest{
		UserID:  run.UserID,
		RunID:   run.ID,
		Subject: run.Subject(),
	})
	if err != nil {
		if ctx.Err() != nil || isTransient(ctx, err) {
			slog.WarnContext(ctx, "run failed with a transient error", "error", err)
			return err
		}
		return s.fail(ctx, run, err)
	}

	analysis := result.Analysis
	if !result.Saved {
		return s.fail(ctx, run, errors.New("analysis could not be saved"))
	}

	status := model.RunStatusCompleted
	if result.Cached {
		status = model.RunStatusCached
	}
	if err := s.deps.Runs.Finish(ctx, run.ID, status, &analysis.ID, nil); err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	s.release(ctx, run)

	s.publish(ctx, model.RunEvent{
		Type:       model.RunEventRun,
		RunID:      run.ID,
		RunStatus:  status,
		AnalysisID: &analysis.ID,
		ShareSlug:  analysis.ShareSlug,
	})
	s.observe(run.SubjectKind, status, analysis.TotalCost, result.Cached)

	slog.InfoContext(ctx, "run finished", "status", status, "analysis_id", analysis.ID)
	return nil
}

func (s *analysisService) FailRun(ctx context.Context, runID int64, reason string) error {
	run, err := s.deps.Runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}
	if run.Status.Terminal() {
		return nil
	}
	return s.fail(ctx, run, errors.New(reason))
}

func (s *analysisService) fail(ctx context.Context, run *model.AnalysisRun, cause error) error {
	msg := failureMessage(cause)
	if err := s.deps.Runs.Finish(ctx, run.ID, model.RunStatusFailed, nil, &msg); err != nil {
		return fmt.Errorf("marking run failed: %w", err)
	}
	s.release(ctx, run)

	s.publish(ctx, model.RunEvent{Type: model.RunEventRun, RunID: run.ID, RunStatus: model.RunStatusFailed, Error: msg})
	s.observe(run.SubjectKind, model.RunStatusFailed, 0, false)

	slog.WarnContext(ctx, "run failed", "error", cause)
	return nil
}

func (s *analysisService) GetRun(ctx context.Context, userID, runID int64) (*RunView, error) {
	run, err := s.ownedRun(ctx, userID, runID)
	if err != nil {
		return nil, err
	}

	statuses, err := s.deps.Events.Statuses(ctx, runID)
	if err != nil {
		slog.WarnContext(ctx, "failed to read run statuses", "error", err, "run_id", runID)
		statuses = model.Statuses{}
	}
	return &RunView{Run: run, Statuses: statuses}, nil
}

func (s *analysisService) Events(ctx context.Context, userID, runID int64, lastID string, block time.Duration) ([]queue.StatusEvent, error) {
	if _, err := s.ownedRun(ctx, userID, runID); err != nil {
		return nil, err
	}
	return s.deps.Events.Read(ctx, runID, lastID, block)
}

func (s *analysisService) Get(ctx context.Context, userID, analysisID int64) (*model.Analysis, error) {
	a, err := s.deps.Analyses.GetByID(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		// A cache hit finishes the caller's run with another user's analysis.
		served, err := s.deps.Runs.ExistsForUserAndAnalysis(ctx, userID, a.ID)
		if err != nil {
			return nil, fmt.Errorf("checking analysis access: %w", err)
		}
		if !served {
			return nil, store.ErrNotFound
		}
		// The per-call spend belongs to the user who paid for the run.
		return a, nil
	}

	records, err := s.deps.TokenUsage.ListByAnalysis(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("loading token usage: %w", err)
	}
	a.TokenUsage = records
	return a, nil
}

func (s *analysisService) GetBySlug(ctx context.Context, slug string) (*model.Analysis, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, store.ErrNotFound
	}
	return s.deps.Analyses.GetBySlug(ctx, slug)
}

func (s *analysisService) List(ctx context.Context, userID int64, limit int32) ([]model.Analysis, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	return s.deps.Analyses.ListByUser(ctx, userID, limit)
}

func (s *analysisService) ownedRun(ctx context.Context, userID, runID int64) (*model.AnalysisRun, error) {
	run, err := s.deps.Runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.UserID != userID {
		return nil, store.ErrNotFound
	}
	return run, nil
}

func (s *analysisService) release(ctx context.Context, run *model.AnalysisRun) {
	if err := s.deps.Lock.Release(ctx, run.UserID, run.ID); err != nil {
		slog.WarnContext(ctx, "failed to release run lock", "error", err)
	}
}

func (s *analysisService) publish(ctx context.Context, evt model.RunEvent) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.Publish(ctx, evt); err != nil {
		slog.WarnContext(ctx, "failed to publish run event", "error", err, "run_status", evt.RunStatus)
	}
}

func (s *analysisService) observe(kind model.SubjectKind, status model.RunStatus, cost model.Cost, cached bool) {
	if s.deps.Observer == nil {
		return
	}
	if cached {
		cost = 0
	}
	s.deps.Observer.ObserveRun(kind, status, cost)
}

// isTransient reports whether retrying the run could succeed.
func isTransient(ctx context.Context, err error) bool {
	switch {
	case errors.Is(err, ErrAppNotFound),
		errors.Is(err, ErrEmptyIdea),
		errors.Is(err, ErrEntitlementExceeded),
		errors.Is(err, ErrUnsupportedSubject):
		return false
	}

	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		return llm.IsRetryable(ctx, stageErr.Err)
	}
	return true
}

// failureMessage is the user-facing reason stored on a failed run.
func failureMessage(err error) string {
	var stageErr *pipeline.StageError
	switch {
	case errors.Is(err, ErrAppNotFound):
		return "App not found in the App Store"
	case errors.Is(err, ErrEmptyIdea):
		return "Idea text is empty"
	case errors.Is(err, ErrEntitlementExceeded):
		return "Monthly analysis limit reached"
	case errors.As(err, &stageErr):
		return "The analysis could not be completed, please try again"
	}
	return logger.Truncate(err.Error(), 500)
}
