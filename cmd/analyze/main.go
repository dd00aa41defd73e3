package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"appideas.app/engine/common"
	"appideas.app/engine/common/id"
	"appideas.app/engine/common/llm"
	"appideas.app/engine/common/logger"
	"appideas.app/engine/core/config"
	"appideas.app/engine/internal/appstore"
	"appideas.app/engine/internal/model"
	"appideas.app/engine/internal/pipeline"
	"appideas.app/engine/internal/report"
	"appideas.app/engine/internal/service"
	"appideas.app/engine/internal/store"
	"github.com/spf13/cobra"
)

var (
	outDir   string
	jsonOut  bool
	country  string
	ideaName string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run an app or idea analysis locally",
		Long: `analyze runs the full analysis pipeline in-process against an App Store
app or a free-text idea and prints the report. Nothing is persisted to the
database and no usage is recorded.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&outDir, "out", "o", "", "Directory to write the markdown report to")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print the analysis as JSON instead of markdown")

	appCmd := &cobra.Command{
		Use:   "app <app-id>",
		Short: "Analyze an App Store app from its reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), model.Subject{
				Kind:    model.SubjectKindApp,
				AppID:   args[0],
				Country: country,
			})
		},
	}
	appCmd.Flags().StringVar(&country, "country", "", "App Store country code (defaults to APPSTORE_COUNTRY)")
	rootCmd.AddCommand(appCmd)

	ideaCmd := &cobra.Command{
		Use:   "idea <text>",
		Short: "Analyze a free-text app idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), model.Subject{
				Kind:     model.SubjectKindIdea,
				IdeaText: args[0],
				IdeaName: ideaName,
			})
		},
	}
	ideaCmd.Flags().StringVar(&ideaName, "name", "", "Optional display name for the idea")
	rootCmd.AddCommand(ideaCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError("Error: %v", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, subject model.Subject) error {
	cfg, err := config.Load(config.ServiceTypeCLI)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg)

	if err := id.Init(3); err != nil {
		return fmt.Errorf("initializing id generator: %w", err)
	}
	if subject.Kind == model.SubjectKindApp && subject.Country == "" {
		subject.Country = cfg.AppStore.Country
	}

	client, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating llm client: %w", err)
	}

	// Cache, entitlements and persistence stay nil: a local run touches no
	// shared state.
	analyzer := service.NewAnalyzer(service.AnalyzerDeps{
		Fetcher: appstore.New(cfg.AppStore),
		Pipeline: pipeline.New(client, pipeline.Options{
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Observer:    &progressPrinter{},
		}),
		Rates: pipeline.RatesPerMillion(cfg.LLM.InputRatePerMillion, cfg.LLM.OutputRatePerMillion),
	})

	printTitle("Analyzing %s", describe(subject))
	result, err := analyzer.Analyze(ctx, service.AnalyzeRequest{Subject: subject})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	a := result.Analysis
	a.ID = id.New()
	a.ShareSlug = common.ShareSlug(a.SubjectName)

	printSuccess("Finished in %.1fs, cost %s across %d model calls", a.ElapsedSeconds, a.TotalCost.String(), len(a.TokenUsage))
	if len(a.Fallbacks) > 0 {
		printWarning("Loosely parsed stages: %v", a.Fallbacks)
	}

	content := report.Markdown(a)
	if outDir != "" {
		reports, err := store.NewLocalReportStore(outDir)
		if err != nil {
			return err
		}
		ref, err := reports.Write(ctx, a, content)
		if err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		printInfo("Report written to %s/%s", outDir, ref.Path)
	}

	printSeparator()
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}
	fmt.Println(content)
	return nil
}

func describe(s model.Subject) string {
	if s.Kind == model.SubjectKindApp {
		return fmt.Sprintf("app %s (%s)", s.AppID, s.Country)
	}
	if s.IdeaName != "" {
		return fmt.Sprintf("idea %q", s.IdeaName)
	}
	return "idea"
}
