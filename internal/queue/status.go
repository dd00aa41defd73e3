package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"appideas.app/engine/internal/model"
	"github.com/redis/go-redis/v9"
)

const statusEventField = "event"

// StatusEvent is a RunEvent together with its stream entry id.
type StatusEvent struct {
	ID    string
	Event model.RunEvent
}

// StatusStream publishes and reads the per-run progress stream.
type StatusStream struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewStatusStream(client *redis.Client, ttl time.Duration) *StatusStream {
	return &StatusStream{client: client, ttl: ttl, now: time.Now}
}

// SectionStatusChanged publishes a section event. Failures are logged and
// dropped so a Redis hiccup never fails a run.
func (s *StatusStream) SectionStatusChanged(ctx context.Context, runID int64, key model.SectionKey, status model.SectionStatus) {
	if runID == 0 {
		return
	}
	evt := model.RunEvent{
		Type:    model.RunEventSection,
		RunID:   runID,
		Section: key,
		Status:  status,
	}
	if err := s.Publish(ctx, evt); err != nil {
		slog.WarnContext(ctx, "failed to publish section status", "error", err, "section", key)
	}
}

func (s *StatusStream) Publish(ctx context.Context, evt model.RunEvent) error {
	if evt.At.IsZero() {
		evt.At = s.now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling run event: %w", err)
	}

	stream := RunStatusStreamName(evt.RunID)
	pipe := s.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{statusEventField: string(payload)},
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, stream, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing run event (stream=%s): %w", stream, err)
	}
	return nil
}

// Read returns events after lastID, blocking up to block when none are
// available; a non-positive block returns immediately. An empty lastID reads
// from the start of the stream.
func (s *StatusStream) Read(ctx context.Context, runID int64, lastID string, block time.Duration) ([]StatusEvent, error) {
	if lastID == "" {
		lastID = "0"
	}
	args := &redis.XReadArgs{
		Streams: []string{RunStatusStreamName(runID), lastID},
		Block:   -1,
	}
	if block > 0 {
		args.Block = block
	}
	streams, err := s.client.XRead(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading run events: %w", err)
	}

	var events []StatusEvent
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			evt, err := decodeStatusEvent(msg)
			if err != nil {
				slog.WarnContext(ctx, "skipping malformed run event", "error", err, "entry_id", msg.ID)
				continue
			}
			events = append(events, evt)
		}
	}
	return events, nil
}

// Statuses folds every section event of a run into its current status map.
func (s *StatusStream) Statuses(ctx context.Context, runID int64) (model.Statuses, error) {
	msgs, err := s.client.XRange(ctx, RunStatusStreamName(runID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("reading run events: %w", err)
	}

	statuses := model.Statuses{}
	for _, msg := range msgs {
		evt, err := decodeStatusEvent(msg)
		if err != nil || evt.Event.Type != model.RunEventSection {
			continue
		}
		if statuses[evt.Event.Section] == model.SectionStatusDone {
			continue
		}
		statuses[evt.Event.Section] = evt.Event.Status
	}
	return statuses, nil
}

func decodeStatusEvent(msg redis.XMessage) (StatusEvent, error) {
	raw, ok := msg.Values[statusEventField]
	if !ok {
		return StatusEvent{}, fmt.Errorf("missing %s", statusEventField)
	}
	var evt model.RunEvent
	if err := json.Unmarshal([]byte(fmt.Sprint(raw)), &evt); err != nil {
		return StatusEvent{}, fmt.Errorf("decoding run event: %w", err)
	}
	return StatusEvent{ID: msg.ID, Event: evt}, nil
}
