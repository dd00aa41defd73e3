package service_test

import (
	"context"
	"time"

	"appideas.app/engine/internal/model"
	"appideas.app/engine/internal/service"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ResultCache", func() {
	var (
		ctx      context.Context
		analyses *mockAnalysisStore
		observer *mockObserver
		cache    service.ResultCache
		subject  model.Subject
		lookups  int
	)

	BeforeEach(func() {
		ctx = context.Background()
		observer = &mockObserver{}
		lookups = 0
		subject = model.Subject{Kind: model.SubjectKindApp, AppID: "123"}
		analyses = &mockAnalysisStore{
			latestForSubjectFn: func(_ context.Context, kind model.SubjectKind, subjectID string, since time.Time) (*model.Analysis, error) {
				lookups++
				Expect(kind).To(Equal(model.SubjectKindApp))
				Expect(subjectID).To(Equal("123"))
				Expect(since).To(BeTemporally("~", time.Now().Add(-14*24*time.Hour), time.Minute))
				return &model.Analysis{ID: 1, SubjectKind: kind, SubjectID: subjectID, CreatedAt: time.Now()}, nil
			},
		}
		cache = service.NewResultCache(analyses, 16, 14*24*time.Hour, observer)
	})

	It("serves repeat lookups from memory", func() {
		a, err := cache.Get(ctx, subject)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.ID).To(Equal(int64(1)))

		_, err = cache.Get(ctx, subject)
		Expect(err).NotTo(HaveOccurred())
		Expect(lookups).To(Equal(1))
		Expect(observer.lookups["memory"]).To(Equal([]bool{false, true}))
		Expect(observer.lookups["store"]).To(Equal([]bool{true}))
	})

	It("returns nil on a miss", func() {
		analyses.latestForSubjectFn = nil

		a, err := cache.Get(ctx, subject)
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(BeNil())
	})

	It("ignores remembered analyses that went stale", func() {
		cache.Put(&model.Analysis{ID: 9, SubjectKind: model.SubjectKindApp, SubjectID: "123", CreatedAt: time.Now().Add(-15 * 24 * time.Hour)})

		a, err := cache.Get(ctx, subject)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.ID).To(Equal(int64(1)))
		Expect(lookups).To(Equal(1))
	})

	It("surfaces store errors", func() {
		analyses.latestForSubjectFn = func(context.Context, model.SubjectKind, string, time.Time) (*model.Analysis, error) {
			return nil, errBoom
		}

		_, err := cache.Get(ctx, subject)
		Expect(err).To(MatchError(ContainSubstring("looking up cached analysis")))
	})
})
