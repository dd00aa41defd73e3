package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"appideas.app/engine/common/logger"
	"appideas.app/engine/internal/queue"
	"github.com/redis/go-redis/v9"
)

const defaultMaxDeliveries = 5

type RedisReclaimerConfig struct {
	Stream   string
	Group    string
	Consumer string
	// MinIdle must exceed the longest legitimate run, or live runs get stolen.
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
	// MaxDeliveries caps how often one message may be handed out. A run
	// past it keeps killing its worker and is dead-lettered instead.
	MaxDeliveries int64
}

// RedisReclaimer takes over runs stranded in the pending list by a worker
// that died between XREADGROUP and XACK.
type RedisReclaimer struct {
	client  *redis.Client
	cfg     RedisReclaimerConfig
	acker   Consumer
	handler MessageHandler

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewRedisReclaimer(client *redis.Client, cfg RedisReclaimerConfig, acker Consumer, handler MessageHandler) *RedisReclaimer {
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = defaultMaxDeliveries
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &RedisReclaimer{
		client:    client,
		cfg:       cfg,
		acker:     acker,
		handler:   handler,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run sweeps the pending list every Interval until Stop is called or ctx ends.
func (r *RedisReclaimer) Run(ctx context.Context) {
	defer close(r.stoppedCh)
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "engine.worker.reclaimer"})

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle,
		"max_deliveries", r.cfg.MaxDeliveries)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "reclaim sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "reclaimed stranded runs", "count", n)
			}
		}
	}
}

func (r *RedisReclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// Sweep claims up to BatchSize idle pending messages and handles each one.
// It returns how many messages this consumer took over.
func (r *RedisReclaimer) Sweep(ctx context.Context) (int, error) {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.cfg.Stream,
		Group:  r.cfg.Group,
		Idle:   r.cfg.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  r.cfg.BatchSize,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("listing pending runs: %w", err)
	}

	claimed := 0
	for _, p := range pending {
		ok, err := r.claim(ctx, p)
		if err != nil {
			slog.ErrorContext(ctx, "failed to reclaim run",
				"error", err,
				"message_id", p.ID,
				"owner", p.Consumer,
				"idle", p.Idle)
			continue
		}
		if ok {
			claimed++
		}
	}
	return claimed, nil
}

func (r *RedisReclaimer) claim(ctx context.Context, p redis.XPendingExt) (bool, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{MessageID: logger.Ptr(p.ID)})

	messages, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.cfg.Stream,
		Group:    r.cfg.Group,
		Consumer: r.cfg.Consumer,
		MinIdle:  r.cfg.MinIdle,
		Messages: []string{p.ID},
	}).Result()
	if err != nil {
		return false, fmt.Errorf("claiming %s: %w", p.ID, err)
	}
	if len(messages) == 0 {
		// Another worker got there first.
		return false, nil
	}

	msg, err := queue.ParseMessage(messages[0])
	if err != nil {
		slog.ErrorContext(ctx, "dropping unparseable stranded message", "error", err)
		_ = r.acker.Ack(ctx, queue.Message{ID: messages[0].ID, Raw: messages[0]})
		return true, nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{RunID: logger.Ptr(msg.RunID)})
	if p.RetryCount >= r.cfg.MaxDeliveries {
		slog.ErrorContext(ctx, "run keeps stalling its worker, dead-lettering",
			"deliveries", p.RetryCount,
			"last_owner", p.Consumer)
		r.handler.DeadLetter(ctx, msg,
			fmt.Sprintf("stranded after %d deliveries", p.RetryCount),
			"Analysis was interrupted repeatedly and has been stopped")
		return true, nil
	}

	slog.InfoContext(ctx, "resuming stranded run",
		"last_owner", p.Consumer,
		"idle", p.Idle,
		"deliveries", p.RetryCount)
	r.handler.HandleMessage(ctx, msg)
	return true, nil
}
