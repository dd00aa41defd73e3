// Package pipeline runs the staged model calls that turn reviews or an idea
// into an analysis. Stages run strictly in order because each prompt reads the
// sections produced before it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"appideas.app/engine/common/llm"
	"appideas.app/engine/common/logger"
	"appideas.app/engine/internal/model"
)

type StageOutcome string

const (
	StageDone     StageOutcome = "done"
	StageFallback StageOutcome = "fallback"
	StageEmpty    StageOutcome = "empty"
	StageFailed   StageOutcome = "failed"
)

// Observer is told about every section status change as it happens.
type Observer interface {
	SectionStatusChanged(ctx context.Context, runID int64, key model.SectionKey, status model.SectionStatus)
}

// Recorder receives per-call and per-stage measurements.
type Recorder interface {
	ObserveCall(stage, modelName string, rec model.TokenUsageRecord, latency time.Duration)
	ObserveCallError(stage, modelName string)
	ObserveStage(stage string, outcome StageOutcome)
}

// StageError is returned when a fatal stage's model call fails.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Options struct {
	Model       string // empty uses the client default
	Temperature float64
	MaxTokens   int
	Observer    Observer
	Recorder    Recorder
}

type Pipeline struct {
	llm         llm.Client
	model       string
	temperature float64
	maxTokens   int
	observer    Observer
	recorder    Recorder
}

func New(client llm.Client, opts Options) *Pipeline {
	if opts.Temperature == 0 {
		opts.Temperature = llm.DefaultTemperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = llm.DefaultMaxTokens
	}
	return &Pipeline{
		llm:         client,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		observer:    opts.Observer,
		recorder:    opts.Recorder,
	}
}

// Run executes stages in order against ac. Only a failed model call in a Fatal
// stage stops the run; any other failure leaves that stage's sections
// RESEARCH UNDERWAY and the run continues.
func (p *Pipeline) Run(ctx context.Context, ac *AnalysisContext, stages []Stage) error {
	start := time.Now()

	for _, stage := range stages {
		outcome, err := p.runStage(ctx, ac, stage)
		if p.recorder != nil {
			p.recorder.ObserveStage(stage.Name, outcome)
		}
		if err != nil && stage.Fatal {
			return &StageError{Stage: stage.Name, Err: err}
		}
	}

	slog.InfoContext(ctx, "pipeline finished",
		"sections", len(ac.Keys()),
		"calls", ac.Cost().Calls(),
		"fallbacks", ac.Fallbacks(),
		"total_cost", ac.Cost().Total().String(),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, ac *AnalysisContext, stage Stage) (StageOutcome, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr(stage.Name)})
	span := logger.StartSpan(ctx, "pipeline.stage",
		attribute.String("stage", stage.Name),
		attribute.Bool("fatal", stage.Fatal))
	defer span.End()
	ctx = span.Context()

	for _, key := range stage.Keys {
		if ac.markUnderway(key) {
			p.notify(ctx, ac, key, model.SectionStatusUnderway)
		}
	}

	prompt := stage.Build(ac)
	callStart := time.Now()
	completion, err := p.llm.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Model:       p.model,
		Temperature: llm.Temp(p.temperature),
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		span.RecordError(err)
		if p.recorder != nil {
			p.recorder.ObserveCallError(stage.Name, p.modelName())
		}
		if stage.Fatal {
			slog.ErrorContext(ctx, "fatal stage failed", "error", err)
		} else {
			slog.WarnContext(ctx, "stage failed, continuing without it", "error", err)
		}
		return StageFailed, err
	}

	rec := ac.Cost().Record(stage.Name, completion)
	if p.recorder != nil {
		p.recorder.ObserveCall(stage.Name, p.modelName(), rec, time.Since(callStart))
	}
	span.SetAttributes(
		attribute.Int("tokens.input", rec.InputTokens),
		attribute.Int("tokens.output", rec.OutputTokens),
		attribute.Int64("cost.nanos", int64(rec.Cost)))

	outcome := StageDone
	out, err := stage.Parse(completion.Content)
	if err != nil {
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			return StageFailed, fmt.Errorf("parsing %s: %w", stage.Name, err)
		}
		slog.InfoContext(ctx, "model ignored requested format, using fallback parser",
			"reason", parseErr.Reason,
			"output", logger.Truncate(completion.Content, 200))
		ac.recordFallback(stage.Name)
		out = stage.Fallback(completion.Content)
		outcome = StageFallback
	}

	produced := 0
	for _, key := range stage.Keys {
		value, ok := out[key]
		if !ok || value.IsEmpty() {
			continue
		}
		ac.set(key, value)
		produced++
		if ac.markDone(key) {
			p.notify(ctx, ac, key, model.SectionStatusDone)
		}
	}
	if produced == 0 {
		slog.WarnContext(ctx, "stage produced no content")
		return StageEmpty, nil
	}

	slog.DebugContext(ctx, "stage complete",
		"outcome", outcome,
		"call", rec.CallNumber,
		"cost", rec.Cost.String())
	return outcome, nil
}

func (p *Pipeline) notify(ctx context.Context, ac *AnalysisContext, key model.SectionKey, status model.SectionStatus) {
	if p.observer != nil {
		p.observer.SectionStatusChanged(ctx, ac.RunID, key, status)
	}
}

func (p *Pipeline) modelName() string {
	if p.model != "" {
		return p.model
	}
	return p.llm.Model()
}
