package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, task Task) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, task Task) error {
	if task.TaskType == "" {
		task.TaskType = TaskTypeAnalysisRun
	}
	if task.Attempt <= 0 {
		task.Attempt = 1
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: taskValues(task),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue run: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued analysis run", "run_id", task.RunID, "user_id", task.UserID, "attempt", task.Attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

func taskValues(task Task) map[string]any {
	values := map[string]any{
		"task_type": string(task.TaskType),
		"run_id":    task.RunID,
		"user_id":   task.UserID,
		"attempt":   task.Attempt,
	}
	if task.TraceID != nil && *task.TraceID != "" {
		values["trace_id"] = *task.TraceID
	}
	return values
}
