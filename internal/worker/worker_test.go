package worker_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"appideas.app/engine/internal/queue"
	"appideas.app/engine/internal/worker"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type mockConsumer struct {
	mu        sync.Mutex
	readFn    func(ctx context.Context) ([]queue.Message, error)
	ackFn     func(ctx context.Context, msg queue.Message) error
	acked     []string
	requeued  []string
	dlq       []string
	lastError string
}

func (m *mockConsumer) Read(ctx context.Context) ([]queue.Message, error) {
	if m.readFn != nil {
		return m.readFn(ctx)
	}
	return nil, nil
}

func (m *mockConsumer) Ack(ctx context.Context, msg queue.Message) error {
	m.mu.Lock()
	m.acked = append(m.acked, msg.ID)
	m.mu.Unlock()
	if m.ackFn != nil {
		return m.ackFn(ctx, msg)
	}
	return nil
}

func (m *mockConsumer) Requeue(_ context.Context, msg queue.Message, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requeued = append(m.requeued, msg.ID)
	m.lastError = errMsg
	return nil
}

func (m *mockConsumer) SendDLQ(_ context.Context, msg queue.Message, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, msg.ID)
	m.lastError = errMsg
	return nil
}

type mockExecutor struct {
	mu        sync.Mutex
	executeFn func(ctx context.Context, runID int64) error
	executed  []int64
	failed    map[int64]string
}

func (m *mockExecutor) Execute(ctx context.Context, runID int64) error {
	m.mu.Lock()
	m.executed = append(m.executed, runID)
	m.mu.Unlock()
	if m.executeFn != nil {
		return m.executeFn(ctx, runID)
	}
	return nil
}

func (m *mockExecutor) FailRun(_ context.Context, runID int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed == nil {
		m.failed = map[int64]string{}
	}
	m.failed[runID] = reason
	return nil
}

func (m *mockExecutor) executedRuns() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.executed...)
}

var _ = Describe("Worker", func() {
	var (
		ctx      context.Context
		consumer *mockConsumer
		executor *mockExecutor
		w        *worker.Worker
		msg      queue.Message
	)

	BeforeEach(func() {
		ctx = context.Background()
		consumer = &mockConsumer{}
		executor = &mockExecutor{}
		w = worker.New(consumer, executor, worker.Config{MaxAttempts: 3})
		msg = queue.Message{ID: "1-0", TaskType: queue.TaskTypeAnalysisRun, RunID: 42, UserID: 7, Attempt: 1}
	})

	It("acks a run that executed", func() {
		w.HandleMessage(ctx, msg)

		Expect(executor.executedRuns()).To(Equal([]int64{42}))
		Expect(consumer.acked).To(Equal([]string{"1-0"}))
		Expect(consumer.requeued).To(BeEmpty())
	})

	It("requeues a failed run with attempts left", func() {
		executor.executeFn = func(context.Context, int64) error { return errors.New("rate limited") }

		w.HandleMessage(ctx, msg)

		Expect(consumer.acked).To(BeEmpty())
		Expect(consumer.requeued).To(Equal([]string{"1-0"}))
		Expect(consumer.lastError).To(ContainSubstring("rate limited"))
		Expect(executor.failed).To(BeEmpty())
	})

	It("dead-letters and fails the run after the last attempt", func() {
		executor.executeFn = func(context.Context, int64) error { return errors.New("still down") }
		msg.Attempt = 3

		w.HandleMessage(ctx, msg)

		Expect(consumer.dlq).To(Equal([]string{"1-0"}))
		Expect(consumer.requeued).To(BeEmpty())
		Expect(executor.failed).To(HaveKeyWithValue(int64(42), "Analysis failed after 3 attempts"))
	})

	It("dead-letters on request without executing", func() {
		w.DeadLetter(ctx, msg, "stranded after 5 deliveries", "Analysis was interrupted repeatedly and has been stopped")

		Expect(executor.executedRuns()).To(BeEmpty())
		Expect(consumer.dlq).To(Equal([]string{"1-0"}))
		Expect(consumer.lastError).To(Equal("stranded after 5 deliveries"))
		Expect(executor.failed).To(HaveKeyWithValue(int64(42), "Analysis was interrupted repeatedly and has been stopped"))
	})

	It("recovers from a panicking run", func() {
		executor.executeFn = func(context.Context, int64) error { panic("nil map") }

		Expect(func() { w.HandleMessage(ctx, msg) }).NotTo(Panic())
		Expect(consumer.requeued).To(Equal([]string{"1-0"}))
		Expect(consumer.lastError).To(ContainSubstring("panic: nil map"))
	})

	It("keeps the run finished when the ack fails", func() {
		consumer.ackFn = func(context.Context, queue.Message) error { return errors.New("redis gone") }

		w.HandleMessage(ctx, msg)

		Expect(consumer.requeued).To(BeEmpty())
		Expect(consumer.dlq).To(BeEmpty())
	})

	It("drains batches until stopped", func() {
		var once sync.Once
		consumer.readFn = func(ctx context.Context) ([]queue.Message, error) {
			var batch []queue.Message
			once.Do(func() {
				batch = []queue.Message{msg, {ID: "2-0", RunID: 43, UserID: 7, Attempt: 1}}
			})
			time.Sleep(5 * time.Millisecond)
			return batch, nil
		}

		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		Eventually(executor.executedRuns).Should(Equal([]int64{42, 43}))
		w.Stop()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("returns when the context is cancelled", func() {
		runCtx, cancel := context.WithCancel(ctx)
		consumer.readFn = func(context.Context) ([]queue.Message, error) {
			return nil, errors.New("connection refused")
		}

		done := make(chan error, 1)
		go func() { done <- w.Run(runCtx) }()
		cancel()

		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})
})
