package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"appideas.app/engine/internal/metrics"
	"appideas.app/engine/internal/model"
	"appideas.app/engine/internal/pipeline"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.New()
	})

	It("accumulates model usage from pipeline calls", func() {
		m.ObserveCall("keywords", "gpt-4o-mini", model.TokenUsageRecord{
			InputTokens: 100, OutputTokens: 20, SystemTokens: 5, Cost: 27_000,
		}, 300*time.Millisecond)
		m.ObserveCall("keywords", "gpt-4o-mini", model.TokenUsageRecord{
			InputTokens: 50, OutputTokens: 10, Cost: 13_500,
		}, 200*time.Millisecond)
		m.ObserveCallError("backlog", "gpt-4o-mini")
		m.ObserveStage("backlog", pipeline.StageFailed)

		Expect(testutil.GatherAndCount(m.Registry(), "appideas_model_calls_total")).To(Equal(1))
		body := scrape(m)
		Expect(body).To(ContainSubstring(`appideas_model_calls_total{model="gpt-4o-mini",stage="keywords"} 2`))
		Expect(body).To(ContainSubstring(`appideas_model_tokens_total{kind="input",stage="keywords"} 150`))
		Expect(body).To(ContainSubstring(`appideas_model_cost_nanodollars_total{stage="keywords"} 40500`))
		Expect(body).To(ContainSubstring(`appideas_model_errors_total{model="gpt-4o-mini",stage="backlog"} 1`))
		Expect(body).To(ContainSubstring(`appideas_pipeline_stages_total{outcome="failed",stage="backlog"} 1`))
	})

	It("counts runs and cache lookups", func() {
		m.ObserveRun(model.SubjectKindApp, model.RunStatusCompleted, 2_000_000)
		m.ObserveRun(model.SubjectKindApp, model.RunStatusCached, 0)
		m.ObserveCacheLookup("memory", false)
		m.ObserveCacheLookup("store", true)

		body := scrape(m)
		Expect(body).To(ContainSubstring(`appideas_pipeline_runs_total{kind="app",status="completed"} 1`))
		Expect(body).To(ContainSubstring(`appideas_pipeline_run_cost_usd_count 1`))
		Expect(body).To(ContainSubstring(`appideas_cache_lookups_total{result="hit",tier="store"} 1`))
	})

	It("labels HTTP requests by route template", func() {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.Use(m.Middleware())
		router.GET("/api/v1/analyses/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/123", nil))

		Expect(scrape(m)).To(ContainSubstring(`appideas_http_requests_total{method="GET",route="/api/v1/analyses/:id",status="204"} 1`))
	})
})

func scrape(m *metrics.Metrics) string {
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(w.Body)
	Expect(err).NotTo(HaveOccurred())
	return string(body)
}
