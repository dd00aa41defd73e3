package worker_test

import (
	"context"
	"time"

	"appideas.app/engine/internal/worker"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type mockJobs struct {
	resetFn func(ctx context.Context) (int64, error)
	purgeFn func(ctx context.Context) (int64, error)
}

func (m *mockJobs) ResetMonthlyUsage(ctx context.Context) (int64, error) {
	if m.resetFn != nil {
		return m.resetFn(ctx)
	}
	return 0, nil
}

func (m *mockJobs) PurgeStaleAnalyses(ctx context.Context) (int64, error) {
	if m.purgeFn != nil {
		return m.purgeFn(ctx)
	}
	return 0, nil
}

var _ = Describe("Scheduler", func() {
	It("rejects malformed cron specs", func() {
		_, err := worker.NewScheduler(&mockJobs{}, worker.SchedulerConfig{UsageResetSpec: "every day"})
		Expect(err).To(MatchError(ContainSubstring("scheduling usage reset")))

		_, err = worker.NewScheduler(&mockJobs{}, worker.SchedulerConfig{PurgeSpec: "* *"})
		Expect(err).To(MatchError(ContainSubstring("scheduling analysis purge")))
	})

	It("runs jobs on schedule until cancelled", func() {
		purged := make(chan struct{}, 10)
		jobs := &mockJobs{purgeFn: func(context.Context) (int64, error) {
			purged <- struct{}{}
			return 1, nil
		}}
		s, err := worker.NewScheduler(jobs, worker.SchedulerConfig{PurgeSpec: "@every 1s"})
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			s.Run(ctx)
			close(done)
		}()

		Eventually(purged, 3*time.Second).Should(Receive())
		cancel()
		Eventually(done).Should(BeClosed())
	})
})
