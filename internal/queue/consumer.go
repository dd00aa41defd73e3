package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"appideas.app/engine/common/logger"
	"github.com/redis/go-redis/v9"
)

// maxErrorLen bounds error text copied into stream entries.
const maxErrorLen = 1000

type ConsumerConfig struct {
	Stream       string        // Redis stream name
	Group        string        // Redis consumer group name
	Consumer     string        // Redis consumer name
	DLQStream    string        // Dead letter stream for runs that exhausted their attempts
	BatchSize    int64         // Number of messages to read per batch
	Block        time.Duration // How long to block waiting for new messages
	MaxAttempts  int           // Maximum attempts before moving to DLQ
	RequeueDelay time.Duration // Delay before re-adding a failed message
}

type Message struct {
	ID        string
	TaskType  TaskType
	RunID     int64
	UserID    int64
	Attempt   int
	TraceID   string
	LastError string
	Raw       redis.XMessage
}

func (m Message) Task() Task {
	task := Task{
		TaskType: m.TaskType,
		RunID:    m.RunID,
		UserID:   m.UserID,
		Attempt:  m.Attempt,
	}
	if m.TraceID != "" {
		task.TraceID = logger.Ptr(m.TraceID)
	}
	return task
}

type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewRedisConsumer(client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	consumer := &RedisConsumer{
		client: client,
		cfg:    cfg,
	}

	if err := consumer.ensureGroup(context.Background()); err != nil { //nolint:contextcheck
		return nil, err
	}

	return consumer, nil
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	// Start from "0" so runs enqueued before the group existed are not skipped.
	if err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err(); err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "engine.queue.consumer",
	})

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		// ">" only delivers new messages; pending ones are picked up by the reclaimer.
		Streams: []string{c.cfg.Stream, ">"},
		Count:   c.cfg.BatchSize,
		Block:   c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var messages []Message
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			parsed, parseErr := ParseMessage(msg)
			if parseErr != nil {
				slog.ErrorContext(ctx, "failed to parse message",
					"error", parseErr,
					"raw_message_id", msg.ID,
					"stream", c.cfg.Stream)
				_ = c.Ack(ctx, Message{ID: msg.ID, Raw: msg})
				continue
			}
			messages = append(messages, parsed)
		}
	}

	if len(messages) > 0 {
		slog.DebugContext(ctx, "read messages from stream",
			"count", len(messages),
			"stream", c.cfg.Stream,
			"consumer", c.cfg.Consumer)
	}

	return messages, nil
}

func (c *RedisConsumer) Ack(ctx context.Context, msg Message) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}

	slog.DebugContext(ctx, "message acknowledged", "stream", c.cfg.Stream)
	return nil
}

// Requeue replaces msg with a copy carrying the next attempt number. The ack
// and the re-add commit together so a crash cannot lose or duplicate the run.
func (c *RedisConsumer) Requeue(ctx context.Context, msg Message, errMsg string) error {
	// Wait while still pending: if the worker dies here the reclaimer owns it.
	if c.cfg.RequeueDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RequeueDelay):
		}
	}

	task := msg.Task()
	task.Attempt = msg.Attempt + 1
	values := taskValues(task)
	if errMsg != "" {
		values["last_error"] = logger.Truncate(errMsg, maxErrorLen)
	}

	if err := c.moveTo(ctx, msg, c.cfg.Stream, values); err != nil {
		return fmt.Errorf("requeuing run %d: %w", msg.RunID, err)
	}

	slog.InfoContext(ctx, "message requeued for retry",
		"next_attempt", task.Attempt,
		"reason", errMsg)
	return nil
}

// SendDLQ parks msg on the dead letter stream with its final error.
func (c *RedisConsumer) SendDLQ(ctx context.Context, msg Message, errMsg string) error {
	values := taskValues(msg.Task())
	values["error"] = logger.Truncate(errMsg, maxErrorLen)
	values["source_id"] = msg.ID
	values["failed_at"] = time.Now().UTC().Format(time.RFC3339)

	if err := c.moveTo(ctx, msg, c.cfg.DLQStream, values); err != nil {
		return fmt.Errorf("dead-lettering run %d: %w", msg.RunID, err)
	}

	slog.ErrorContext(ctx, "message sent to DLQ",
		"final_error", errMsg,
		"dlq_stream", c.cfg.DLQStream)
	return nil
}

func (c *RedisConsumer) moveTo(ctx context.Context, msg Message, stream string, values map[string]any) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID)
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values})
		return nil
	})
	return err
}

func ParseMessage(msg redis.XMessage) (Message, error) {
	taskType, err := parseOptionalString(msg.Values, "task_type")
	if err != nil {
		return Message{}, err
	}
	if taskType == "" {
		taskType = string(TaskTypeAnalysisRun)
	}
	if TaskType(taskType) != TaskTypeAnalysisRun {
		return Message{}, fmt.Errorf("unknown task_type %q", taskType)
	}

	runID, err := parseInt64(msg.Values, "run_id")
	if err != nil {
		return Message{}, err
	}
	userID, err := parseInt64(msg.Values, "user_id")
	if err != nil {
		return Message{}, err
	}

	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt <= 0 {
		attempt = 1
	}

	traceID, err := parseOptionalString(msg.Values, "trace_id")
	if err != nil {
		return Message{}, err
	}
	lastError, err := parseOptionalString(msg.Values, "last_error")
	if err != nil {
		return Message{}, err
	}

	return Message{
		ID:        msg.ID,
		TaskType:  TaskType(taskType),
		RunID:     runID,
		UserID:    userID,
		Attempt:   attempt,
		TraceID:   traceID,
		LastError: lastError,
		Raw:       msg,
	}, nil
}

func parseInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", nil
	}
	return fmt.Sprint(raw), nil
}
