package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"appideas.app/engine/common/llm"
	"appideas.app/engine/internal/model"
	"appideas.app/engine/internal/pipeline"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockLLMClient answers by recognising which stage a prompt belongs to.
type mockLLMClient struct {
	completeFn func(ctx context.Context, req llm.Request) (*llm.Completion, error)
	requests   []llm.Request
}

func (m *mockLLMClient) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	m.requests = append(m.requests, req)
	if m.completeFn != nil {
		return m.completeFn(ctx, req)
	}
	return nil, errors.New("mock not configured")
}

func (m *mockLLMClient) Model() string {
	return "test-model"
}

func (m *mockLLMClient) promptFor(stage string) string {
	for _, req := range m.requests {
		if stageOf(req.Prompt) == stage {
			return req.Prompt
		}
	}
	return ""
}

var stageMarkers = []struct{ marker, stage string }{
	{"### What users like", "sentiment"},
	{"search keywords", "keywords"},
	{"must definitely include", "definitely_include"},
	{"feature backlog", "backlog"},
	{"strategic recommendations", "recommendations"},
	{"Write an App Store description", "description"},
	{"Suggest names", "app_names"},
	{"product requirements prompt", "prp"},
	{"List existing App Store apps similar", "similar_apps"},
	{"competitive landscape", "competitors"},
	{"Recommend a pricing model", "pricing_model"},
	{"Assess the market viability", "market_viability"},
}

func stageOf(prompt string) string {
	for _, m := range stageMarkers {
		if strings.Contains(prompt, m.marker) {
			return m.stage
		}
	}
	return "unknown"
}

var cannedResponses = map[string]string{
	"sentiment":          "### What users like\n• fast\n• great UI\n\n### What users dislike or want changed\n• crashes often\n",
	"keywords":           "notes, fast editor, wiki",
	"definitely_include": "- Instant search\n- Clean editor",
	"backlog":            "1. [High] Fix crashes\n2. Offline mode\n3. [Low] Themes",
	"recommendations":    "[HIGH] Speed: Keep it fast.\n[CRITICAL] Stability: Stop the crashes.",
	"description":        "A fast, stable notes app.",
	"app_names":          "- Swiftnote\n- Calmpad",
	"prp":                "# Build Swiftnote\n...",
	"similar_apps":       "Bear: beautiful, no web app.",
	"competitors":        "Notion: broad, slow on mobile.",
	"pricing_model":      "Freemium with a $4.99/month tier.",
	"market_viability":   "Small but real niche. Viability score: 6/10",
}

// recordingObserver captures status events in order.
type recordingObserver struct {
	mu     sync.Mutex
	events []statusEvent
}

type statusEvent struct {
	key    model.SectionKey
	status model.SectionStatus
}

func (o *recordingObserver) SectionStatusChanged(_ context.Context, _ int64, key model.SectionKey, status model.SectionStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, statusEvent{key: key, status: status})
}

type recordingRecorder struct {
	calls    int
	errors   int
	outcomes map[string]pipeline.StageOutcome
}

func (r *recordingRecorder) ObserveCall(string, string, model.TokenUsageRecord, time.Duration) {
	r.calls++
}
func (r *recordingRecorder) ObserveCallError(string, string) { r.errors++ }
func (r *recordingRecorder) ObserveStage(stage string, outcome pipeline.StageOutcome) {
	r.outcomes[stage] = outcome
}

func appSubject() model.Subject {
	return model.Subject{
		Kind:  model.SubjectKindApp,
		AppID: "1232780281",
		App:   &model.AppMetadata{ID: "1232780281", Name: "Notion", Developer: "Notion Labs", Genre: "Productivity", Rating: 4.7, RatingCount: 1000},
	}
}

func threeReviews() []model.Review {
	return []model.Review{
		{Title: "Love it", Rating: 5, Text: "So fast and the UI is great"},
		{Title: "Nice", Rating: 4, Text: "Great UI"},
		{Title: "Crashy", Rating: 2, Text: "It crashes often"},
	}
}

var _ = Describe("Pipeline", func() {
	var (
		ctx      context.Context
		mockLLM  *mockLLMClient
		observer *recordingObserver
		recorder *recordingRecorder
		failing  map[string]error
		replies  map[string]string
		p        *pipeline.Pipeline
		rates    pipeline.Rates
	)

	BeforeEach(func() {
		ctx = context.Background()
		failing = map[string]error{}
		replies = map[string]string{}
		for k, v := range cannedResponses {
			replies[k] = v
		}
		mockLLM = &mockLLMClient{
			completeFn: func(_ context.Context, req llm.Request) (*llm.Completion, error) {
				stage := stageOf(req.Prompt)
				if err, ok := failing[stage]; ok {
					return nil, err
				}
				return &llm.Completion{
					Content:          replies[stage],
					PromptTokens:     len(req.Prompt) / 4,
					CompletionTokens: 50,
					TotalTokens:      len(req.Prompt)/4 + 60,
				}, nil
			},
		}
		observer = &recordingObserver{}
		recorder = &recordingRecorder{outcomes: map[string]pipeline.StageOutcome{}}
		rates = pipeline.RatesPerMillion(0.15, 0.60)
		p = pipeline.New(mockLLM, pipeline.Options{Observer: observer, Recorder: recorder})
	})

	Describe("app analysis end to end", func() {
		It("threads sentiment into the keyword prompt and completes every section", func() {
			ac := pipeline.NewAnalysisContext(appSubject(), pipeline.Corpus(threeReviews()), 3, rates)

			err := p.Run(ctx, ac, pipeline.AppStages())

			Expect(err).NotTo(HaveOccurred())
			Expect(ac.Items(model.SectionLikes)).To(Equal([]string{"fast", "great UI"}))
			Expect(ac.Items(model.SectionDislikes)).To(Equal([]string{"crashes often"}))
			Expect(mockLLM.promptFor("keywords")).To(ContainSubstring("fast"))
			Expect(mockLLM.promptFor("sentiment")).To(ContainSubstring("It crashes often"))
			Expect(mockLLM.promptFor("keywords")).NotTo(ContainSubstring("It crashes often"))
			Expect(ac.Cost().Total()).To(BeNumerically(">", 0))

			for _, key := range model.SectionKeys(model.SubjectKindApp) {
				status, ok := ac.Status(key)
				Expect(ok).To(BeTrue(), string(key))
				Expect(status).To(Equal(model.SectionStatusDone), string(key))
			}
			Expect(ac.Keys()).To(Equal(model.SectionKeys(model.SubjectKindApp)))
			Expect(recorder.calls).To(Equal(11))
			Expect(ac.Fallbacks()).To(BeEmpty())
		})

		It("sends the configured temperature and token limit on every call", func() {
			ac := pipeline.NewAnalysisContext(appSubject(), "corpus", 1, rates)

			Expect(p.Run(ctx, ac, pipeline.AppStages())).To(Succeed())

			for _, req := range mockLLM.requests {
				Expect(*req.Temperature).To(BeNumerically("~", 0.2))
				Expect(req.MaxTokens).To(Equal(5000))
			}
		})

		It("orders recommendations by tier", func() {
			ac := pipeline.NewAnalysisContext(appSubject(), "corpus", 1, rates)

			Expect(p.Run(ctx, ac, pipeline.AppStages())).To(Succeed())

			Expect(ac.Items(model.SectionRecommendations)).To(Equal([]string{
				"[CRITICAL] Stability: Stop the crashes.",
				"[HIGH] Speed: Keep it fast.",
			}))
		})

		It("embeds the pricing and revenue guardrails", func() {
			ac := pipeline.NewAnalysisContext(appSubject(), "corpus", 1, rates)

			Expect(p.Run(ctx, ac, pipeline.AppStages())).To(Succeed())

			Expect(mockLLM.promptFor("pricing_model")).To(ContainSubstring("$14.99 per month"))
			Expect(mockLLM.promptFor("market_viability")).To(ContainSubstring("Never estimate more than $1,000,000"))
		})
	})

	Describe("cost reconciliation", func() {
		It("matches the sum of per-call records even when stages fail", func() {
			failing["backlog"] = errors.New("boom")
			failing["prp"] = errors.New("boom")
			ac := pipeline.NewAnalysisContext(appSubject(), "corpus", 1, pipeline.RatesPerMillion(0.0375, 0.15))

			Expect(p.Run(ctx, ac, pipeline.AppStages())).To(Succeed())

			var sum model.Cost
			for _, rec := range ac.Cost().Records() {
				sum += rec.Cost
			}
			Expect(sum).To(Equal(ac.Cost().Total()))
			Expect(ac.Cost().Calls()).To(Equal(9))
		})
	})

	Describe("fatal first stage", func() {
		It("aborts before any later call and spends nothing", func() {
			failing["sentiment"] = &llm.APIError{Provider: "openai", StatusCode: 401, Body: "bad key"}
			ac := pipeline.NewAnalysisContext(appSubject(), "corpus", 1, rates)

			err := p.Run(ctx, ac, pipeline.AppStages())

			var stageErr *pipeline.StageError
			Expect(errors.As(err, &stageErr)).To(BeTrue())
			Expect(stageErr.Stage).To(Equal("sentiment"))
			var apiErr *llm.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(mockLLM.requests).To(HaveLen(1))
			Expect(ac.Cost().Total()).To(Equal(model.Cost(0)))
			status, _ := ac.Status(model.SectionLikes)
			Expect(status).To(Equal(model.SectionStatusUnderway))
		})
	})

	Describe("partial success", func() {
		It("skips a failed middle stage and keeps going", func() {
			failing["definitely_include"] = errors.New("upstream timeout")
			ac := pipeline.NewAnalysisContext(appSubject(), "corpus", 1, rates)

			err := p.Run(ctx, ac, pipeline.AppStages())

			Expect(err).NotTo(HaveOccurred())
			sections := ac.Sections()
			Expect(sections).NotTo(HaveKey(model.SectionDefinitelyInclude))
			Expect(sections).To(HaveKey(model.SectionLikes))
			Expect(sections).To(HaveKey(model.SectionKeywords))
			Expect(sections).To(HaveKey(model.SectionBacklog))
			Expect(sections).To(HaveKey(model.SectionMarketViability))

			status, _ := ac.Status(model.SectionDefinitelyInclude)
			Expect(status).To(Equal(model.SectionStatusUnderway))
			Expect(recorder.outcomes["definitely_include"]).To(Equal(pipeline.StageFailed))
			Expect(recorder.errors).To(Equal(1))
			Expect(mockLLM.promptFor("backlog")).To(ContainSubstring("(none)"))
		})
	})

	Describe("status transitions", func() {
		It("never moves a section from DONE back to RESEARCH UNDERWAY", func() {
			ac := pipeline.NewAnalysisContext(appSubject(), "corpus", 1, rates)
			Expect(p.Run(ctx, ac, pipeline.AppStages())).To(Succeed())

			failing["keywords"] = errors.New("boom")
			Expect(p.Run(ctx, ac, pipeline.AppStages())).To(Succeed())

			done := map[model.SectionKey]bool{}
			for _, ev := range observer.events {
				if ev.status == model.SectionStatusDone {
					done[ev.key] = true
					continue
				}
				Expect(done[ev.key]).To(BeFalse(), "section %s regressed", ev.key)
			}
			status, _ := ac.Status(model.SectionKeywords)
			Expect(status).To(Equal(model.SectionStatusDone))
		})

		It("announces underway before done for each section", func() {
			ac := pipeline.NewAnalysisContext(appSubject(), "corpus", 1, rates)
			Expect(p.Run(ctx, ac, pipeline.AppStages())).To(Succeed())

			Expect(observer.events[0]).To(Equal(statusEvent{model.SectionLikes, model.SectionStatusUnderway}))
			Expect(observer.events[1]).To(Equal(statusEvent{model.SectionDislikes, model.SectionStatusUnderway}))
			Expect(observer.events[2]).To(Equal(statusEvent{model.SectionLikes, model.SectionStatusDone}))
		})
	})

	Describe("fallback parsing", func() {
		It("half-splits sentiment without headings and flags the fallback", func() {
			replies["sentiment"] = "• fast\n• great UI\n• crashes often\n• pricey"
			ac := pipeline.NewAnalysisContext(appSubject(), "corpus", 1, rates)

			Expect(p.Run(ctx, ac, pipeline.AppStages())).To(Succeed())

			Expect(ac.Items(model.SectionLikes)).To(Equal([]string{"fast", "great UI"}))
			Expect(ac.Items(model.SectionDislikes)).To(Equal([]string{"crashes often", "pricey"}))
			Expect(ac.Fallbacks()).To(ContainElement("sentiment"))
			Expect(recorder.outcomes["sentiment"]).To(Equal(pipeline.StageFallback))
		})

		It("tolerates an empty sentiment completion", func() {
			replies["sentiment"] = "   "
			ac := pipeline.NewAnalysisContext(appSubject(), "corpus", 1, rates)

			Expect(p.Run(ctx, ac, pipeline.AppStages())).To(Succeed())

			Expect(ac.Items(model.SectionLikes)).To(Equal([]string{pipeline.UnableToAnalyze}))
			status, _ := ac.Status(model.SectionLikes)
			Expect(status).To(Equal(model.SectionStatusDone))
			Expect(mockLLM.requests).To(HaveLen(11))
		})

		It("leaves recommendations underway when nothing is tagged", func() {
			replies["recommendations"] = "Fix the crashes.\nKeep it fast."
			ac := pipeline.NewAnalysisContext(appSubject(), "corpus", 1, rates)

			Expect(p.Run(ctx, ac, pipeline.AppStages())).To(Succeed())

			Expect(ac.Sections()).NotTo(HaveKey(model.SectionRecommendations))
			status, _ := ac.Status(model.SectionRecommendations)
			Expect(status).To(Equal(model.SectionStatusUnderway))
			Expect(recorder.outcomes["recommendations"]).To(Equal(pipeline.StageEmpty))
		})
	})

	Describe("idea analysis", func() {
		It("uses the idea as corpus and researches competitors", func() {
			subject := model.Subject{Kind: model.SubjectKindIdea, IdeaText: "An app that matches dog owners with walkers", IdeaName: "Walkies"}
			ac := pipeline.NewAnalysisContext(subject, subject.IdeaText, 0, rates)

			Expect(p.Run(ctx, ac, pipeline.Stages(model.SubjectKindIdea))).To(Succeed())

			Expect(mockLLM.promptFor("sentiment")).To(ContainSubstring("matches dog owners with walkers"))
			Expect(mockLLM.promptFor("sentiment")).To(ContainSubstring(`"Walkies"`))
			Expect(ac.Keys()).To(Equal(model.SectionKeys(model.SubjectKindIdea)))
			Expect(mockLLM.promptFor("similar_apps")).To(BeEmpty())
			Expect(mockLLM.promptFor("market_viability")).To(ContainSubstring("Notion: broad"))
		})
	})

	Describe("Analysis", func() {
		It("flattens the run for persistence", func() {
			failing["prp"] = errors.New("boom")
			ac := pipeline.NewAnalysisContext(appSubject(), "corpus", 3, rates)
			Expect(p.Run(ctx, ac, pipeline.AppStages())).To(Succeed())

			a := ac.Analysis()

			Expect(a.SubjectKind).To(Equal(model.SubjectKindApp))
			Expect(a.SubjectID).To(Equal("1232780281"))
			Expect(a.SubjectName).To(Equal("Notion"))
			Expect(a.ReviewCount).To(Equal(3))
			Expect(a.Sections).NotTo(HaveKey(model.SectionPRP))
			Expect(a.Statuses[model.SectionPRP]).To(Equal(model.SectionStatusUnderway))
			Expect(a.TokenUsage).To(HaveLen(10))
			Expect(a.TotalCost).To(Equal(ac.Cost().Total()))
		})
	})
})

var _ = Describe("Corpus", func() {
	It("numbers reviews with their rating", func() {
		corpus := pipeline.Corpus(threeReviews())

		Expect(corpus).To(HavePrefix("Review 1 (5/5): Love it\nSo fast and the UI is great"))
		Expect(corpus).To(ContainSubstring("Review 3 (2/5): Crashy"))
	})

	It("stops adding reviews past the size cap", func() {
		long := strings.Repeat("x", 30000)
		corpus := pipeline.Corpus([]model.Review{{Text: long}, {Text: long}})

		Expect(strings.Count(corpus, "Review ")).To(Equal(1))
	})
})
