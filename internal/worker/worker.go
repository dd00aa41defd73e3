package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"appideas.app/engine/common/logger"
	"appideas.app/engine/internal/queue"
	"go.opentelemetry.io/otel/attribute"
)

type Config struct {
	MaxAttempts  int
	ErrorBackoff time.Duration
}

type Worker struct {
	consumer Consumer
	executor RunExecutor
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, executor RunExecutor, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{
		consumer:  consumer,
		executor:  executor,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "engine.worker"})
	slog.InfoContext(ctx, "worker started", "max_attempts", w.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				select {
				case <-ctx.Done():
				case <-time.After(w.cfg.ErrorBackoff):
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		w.HandleMessage(ctx, msg)
	}
	return nil
}

// HandleMessage processes msg and acks, requeues or dead-letters it.
func (w *Worker) HandleMessage(ctx context.Context, msg queue.Message) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: logger.Ptr(msg.ID),
		RunID:     logger.Ptr(msg.RunID),
		UserID:    logger.Ptr(msg.UserID),
	})

	if err := w.processMessageSafe(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "message processing failed", "error", err, "attempt", msg.Attempt)
		w.handleFailedMessage(ctx, msg, err)
	}
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage executes the run and acks the message on success. A
// returned error leaves the message unacked.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	span := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.analysis_run")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("run.id", msg.RunID),
		attribute.Int("message.attempt", msg.Attempt),
	)
	ctx = span.Context()

	slog.InfoContext(ctx, "processing message", "attempt", msg.Attempt)
	start := time.Now()

	if err := w.executor.Execute(ctx, msg.RunID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("executing run: %w", err)
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The run is finished; a redelivery is skipped as already terminal.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}

	slog.InfoContext(ctx, "message processed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ", "attempts", msg.Attempt)
		w.DeadLetter(ctx, msg, err.Error(), fmt.Sprintf("Analysis failed after %d attempts", msg.Attempt))
		return
	}

	slog.WarnContext(ctx, "requeuing failed message", "attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}

// DeadLetter moves msg to the DLQ and records reason on its run.
func (w *Worker) DeadLetter(ctx context.Context, msg queue.Message, cause, reason string) {
	if err := w.consumer.SendDLQ(ctx, msg, cause); err != nil {
		slog.ErrorContext(ctx, "failed to send to DLQ", "error", err)
	}
	if err := w.executor.FailRun(ctx, msg.RunID, reason); err != nil {
		slog.ErrorContext(ctx, "failed to mark run failed", "error", err)
	}
}
