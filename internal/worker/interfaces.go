package worker

import (
	"context"

	"appideas.app/engine/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// RunExecutor executes queued analysis runs. Mirrors the run half of
// service.AnalysisService.
type RunExecutor interface {
	Execute(ctx context.Context, runID int64) error
	FailRun(ctx context.Context, runID int64, reason string) error
}

// MessageHandler is what the reclaimer hands claimed messages to.
// *Worker implements it.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg queue.Message)
	DeadLetter(ctx context.Context, msg queue.Message, cause, reason string)
}

// MaintenanceJobs are the scheduled housekeeping tasks.
type MaintenanceJobs interface {
	ResetMonthlyUsage(ctx context.Context) (int64, error)
	PurgeStaleAnalyses(ctx context.Context) (int64, error)
}
