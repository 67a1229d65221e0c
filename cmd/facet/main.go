package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"facet/internal/classify"
	"facet/internal/config"
	"facet/internal/extract"
	"facet/internal/hierarchy"
	"facet/internal/report"
	"facet/internal/template"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	rootCmd = &cobra.Command{
		Use:   "facet",
		Short: "Hierarchical span extraction for free-text feedback",
	}
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the run configuration file")

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(skeletonCmd)
}

// loadTaxonomy loads the config plus the hierarchy and template store it
// points at.
func loadTaxonomy() (*config.Config, *hierarchy.Index, *template.Store, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	idx, err := hierarchy.Load(cfg.Taxonomy.Hierarchy)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load hierarchy: %w", err)
	}
	store, err := template.Load(cfg.Taxonomy.Templates)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load templates: %w", err)
	}
	return cfg, idx, store, nil
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Run the staged classification pipeline over the input workbook",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, idx, store, err := loadTaxonomy()
		if err != nil {
			log.Fatalf("%v", err)
		}
		if cfg.AI.APIKey == "" {
			log.Fatalf("AI API key not configured (set FACET_API_KEY or ai.api_key)")
		}

		logger, err := zap.NewProduction()
		if err != nil {
			log.Fatalf("Failed to create logger: %v", err)
		}
		defer logger.Sync()

		comments, err := report.LoadComments(cfg.Input.File, cfg.Input.Column)
		if err != nil {
			log.Fatalf("Failed to load comments: %v", err)
		}
		fmt.Printf("📂 Loaded %d comments from %s\n", len(comments), cfg.Input.File)

		gen, err := extract.NewGemini(ctx, extract.GeminiConfig{
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
		})
		if err != nil {
			log.Fatalf("Failed to create generator: %v", err)
		}

		orch, err := classify.New(idx, store, gen, logger, classify.Options{
			MaxStage:    cfg.Run.MaxStage,
			BatchSize:   cfg.Run.BatchSize,
			Concurrency: cfg.Run.Concurrency,
		})
		if err != nil {
			log.Fatalf("Failed to create orchestrator: %v", err)
		}

		start := time.Now()
		fmt.Printf("🚀 Classifying through stage %d...\n", cfg.Run.MaxStage)
		trees, runReport, err := orch.Classify(ctx, comments)
		if err != nil && len(trees) == 0 {
			log.Fatalf("Classification failed: %v", err)
		}
		if err != nil {
			fmt.Printf("⚠️  Run interrupted: %v (keeping completed stages)\n", err)
		}
		fmt.Printf("✅ Classified %d comments in %v.\n", len(trees), time.Since(start))

		runName := report.NewRunName(cfg.Run.MaxStage, start)
		outDir := filepath.Join(cfg.Output.Dir, runName)
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}

		if err := report.WriteTreesJSON(filepath.Join(outDir, "trees.json"), trees); err != nil {
			log.Fatalf("Failed to write trees: %v", err)
		}
		records := classify.FlattenAll(trees, idx)
		if err := report.WriteRecordsCSV(filepath.Join(outDir, "results.csv"), records); err != nil {
			log.Fatalf("Failed to write CSV: %v", err)
		}
		if err := report.WriteRecordsXLSX(filepath.Join(outDir, "results.xlsx"), records); err != nil {
			log.Fatalf("Failed to write workbook: %v", err)
		}
		if _, err := runReport.Save(outDir); err != nil {
			log.Fatalf("Failed to write run report: %v", err)
		}

		meta := report.RunMetadata{
			RunName:    runName,
			Timestamp:  start.UTC(),
			MaxStage:   cfg.Run.MaxStage,
			BatchSize:  cfg.Run.BatchSize,
			Model:      cfg.AI.Model,
			InputFile:  cfg.Input.File,
			Hierarchy:  cfg.Taxonomy.Hierarchy,
			Templates:  cfg.Taxonomy.Templates,
			ResultsDir: outDir,
		}
		if err := meta.Save(outDir); err != nil {
			log.Fatalf("Failed to write run metadata: %v", err)
		}

		fmt.Println(runReport.Summary())
		fmt.Printf("🎉 Results written to %s\n", outDir)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report template coverage for every scope the hierarchy requires",
	Run: func(cmd *cobra.Command, args []string) {
		_, idx, store, err := loadTaxonomy()
		if err != nil {
			log.Fatalf("%v", err)
		}

		statuses := store.Coverage(idx)
		missing, notReady := 0, 0
		for _, st := range statuses {
			mark := "✅"
			switch {
			case !st.Exists:
				mark = "❌ missing"
				missing++
			case !st.Ready:
				mark = "⏸  not ready"
				notReady++
			}
			fmt.Printf("stage %d  %-40s %s  (%s)\n", st.Stage, st.Scope, mark, st.File)
		}
		fmt.Printf("\n%d scopes: %d missing, %d not ready\n", len(statuses), missing, notReady)
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <stage> [scope-label]",
	Short: "Print the assembled prompt for a stage and scope",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		_, _, store, err := loadTaxonomy()
		if err != nil {
			log.Fatalf("%v", err)
		}

		var stage int
		if _, err := fmt.Sscanf(args[0], "%d", &stage); err != nil {
			log.Fatalf("Invalid stage %q", args[0])
		}
		scope := ""
		if len(args) > 1 {
			scope = args[1]
		}
		if stage > 1 && scope == "" {
			log.Fatalf("Stages beyond the first need a scope label")
		}

		tpl, ok := store.Resolve(stage, scope)
		if !ok {
			log.Fatalf("No template for stage %d scope %q", stage, scope)
		}
		fmt.Println(tpl.Prompt("<comment text goes here>"))
	},
}

var skeletonCmd = &cobra.Command{
	Use:   "skeleton <dir>",
	Short: "Generate not-ready template skeletons for every scope in the hierarchy",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		idx, err := hierarchy.Load(cfg.Taxonomy.Hierarchy)
		if err != nil {
			log.Fatalf("Failed to load hierarchy: %v", err)
		}

		written, err := template.WriteSkeletons(idx, args[0])
		if err != nil {
			log.Fatalf("Failed to write skeletons: %v", err)
		}
		for _, path := range written {
			fmt.Printf("📝 %s\n", path)
		}
		fmt.Printf("✅ Wrote %d skeleton templates to %s\n", len(written), args[0])
	},
}
