package queue_test

import (
	"github.com/redis/go-redis/v9"

	"appideas.app/engine/internal/queue"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseMessage", func() {
	It("parses an analysis run message", func() {
		msg, err := queue.ParseMessage(redis.XMessage{
			ID: "1-0",
			Values: map[string]any{
				"task_type":  "analysis_run",
				"run_id":     "42",
				"user_id":    "7",
				"attempt":    "2",
				"trace_id":   "abc123",
				"last_error": "rate limited",
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.ID).To(Equal("1-0"))
		Expect(msg.TaskType).To(Equal(queue.TaskTypeAnalysisRun))
		Expect(msg.RunID).To(Equal(int64(42)))
		Expect(msg.UserID).To(Equal(int64(7)))
		Expect(msg.Attempt).To(Equal(2))
		Expect(msg.TraceID).To(Equal("abc123"))
		Expect(msg.LastError).To(Equal("rate limited"))
	})

	It("defaults task type and attempt", func() {
		msg, err := queue.ParseMessage(redis.XMessage{
			ID:     "2-0",
			Values: map[string]any{"run_id": "1", "user_id": "2"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.TaskType).To(Equal(queue.TaskTypeAnalysisRun))
		Expect(msg.Attempt).To(Equal(1))
		Expect(msg.TraceID).To(BeEmpty())
	})

	It("rejects a message without run_id", func() {
		_, err := queue.ParseMessage(redis.XMessage{Values: map[string]any{"user_id": "2"}})
		Expect(err).To(MatchError(ContainSubstring("missing run_id")))
	})

	It("rejects a non-numeric user_id", func() {
		_, err := queue.ParseMessage(redis.XMessage{Values: map[string]any{"run_id": "1", "user_id": "bob"}})
		Expect(err).To(MatchError(ContainSubstring("parsing user_id")))
	})

	It("rejects unknown task types", func() {
		_, err := queue.ParseMessage(redis.XMessage{Values: map[string]any{"task_type": "repo_sync", "run_id": "1", "user_id": "2"}})
		Expect(err).To(MatchError(ContainSubstring("unknown task_type")))
	})
})

var _ = Describe("Message.Task", func() {
	It("carries the trace id only when present", func() {
		task := queue.Message{TaskType: queue.TaskTypeAnalysisRun, RunID: 5, UserID: 6, Attempt: 3}.Task()
		Expect(task.TraceID).To(BeNil())
		Expect(task.Attempt).To(Equal(3))

		task = queue.Message{RunID: 5, TraceID: "t"}.Task()
		Expect(task.TraceID).NotTo(BeNil())
		Expect(*task.TraceID).To(Equal("t"))
	})
})

var _ = Describe("RunStatusStreamName", func() {
	It("namespaces by run id", func() {
		Expect(queue.RunStatusStreamName(99)).To(Equal("analysis-status:run-99"))
	})
})
