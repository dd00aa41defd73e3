package config_test

import (
	"time"

	"appideas.app/engine/core/config"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Load", func() {
	BeforeEach(func() {
		// Skip .env discovery so the test only sees what it sets.
		GinkgoT().Setenv("APP_ENV", "test")
	})

	It("requires an LLM key for the worker", func() {
		GinkgoT().Setenv("LLM_API_KEY", "")

		_, err := config.Load(config.ServiceTypeWorker)

		Expect(err).To(MatchError(ContainSubstring("LLM_API_KEY")))
	})

	It("does not require an LLM key for the API server", func() {
		GinkgoT().Setenv("LLM_API_KEY", "")

		cfg, err := config.Load(config.ServiceTypeServer)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LLM.Enabled()).To(BeFalse())
	})

	It("applies pipeline defaults", func() {
		GinkgoT().Setenv("LLM_API_KEY", "sk-test")

		cfg, err := config.Load(config.ServiceTypeWorker)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LLM.Temperature).To(BeNumerically("~", 0.2))
		Expect(cfg.LLM.MaxTokens).To(Equal(5000))
		Expect(cfg.AppStore.MaxPages).To(Equal(200))
		Expect(cfg.Cache.TTL).To(Equal(14 * 24 * time.Hour))
	})

	It("reads rates and durations from the environment", func() {
		GinkgoT().Setenv("LLM_API_KEY", "sk-test")
		GinkgoT().Setenv("LLM_INPUT_RATE_PER_MILLION", "2.5")
		GinkgoT().Setenv("LLM_OUTPUT_RATE_PER_MILLION", "10")
		GinkgoT().Setenv("ANALYSIS_CACHE_TTL", "48h")

		cfg, err := config.Load(config.ServiceTypeCLI)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LLM.InputRatePerMillion).To(BeNumerically("~", 2.5))
		Expect(cfg.LLM.OutputRatePerMillion).To(BeNumerically("~", 10))
		Expect(cfg.Cache.TTL).To(Equal(48 * time.Hour))
	})

	It("rejects a non-positive page ceiling", func() {
		GinkgoT().Setenv("LLM_API_KEY", "sk-test")
		GinkgoT().Setenv("APPSTORE_MAX_PAGES", "0")

		_, err := config.Load(config.ServiceTypeWorker)

		Expect(err).To(MatchError(ContainSubstring("APPSTORE_MAX_PAGES")))
	})
})
