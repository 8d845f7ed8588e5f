// Command vitrine runs the outreach pipeline: discover local businesses
// with no real web presence, draft a pitch for each, render demo sites
// into the resources root.
//
// Usage:
//
//	vitrine -stage prospect -query coiffeur -city Lyon
//	vitrine -stage all -query boulangerie -city Paris -resources ./resources
//
// Stages build on one another: draft implies prospect, render (and all)
// implies draft. prospect and draft print their result as JSON on stdout;
// render reports the folders it wrote.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hazyhaar/vitrine/ledger"
	"github.com/hazyhaar/vitrine/pitch"
	"github.com/hazyhaar/vitrine/prospect"
	"github.com/hazyhaar/vitrine/sitegen"
)

func main() {
	stage := flag.String("stage", "all", "pipeline stage: prospect, draft, render, all")
	query := flag.String("query", "", "business type to search for, e.g. coiffeur")
	city := flag.String("city", "", "city to search in")
	limit := flag.Int("limit", 10, "maximum businesses to consider")
	configPath := flag.String("config", "", "path to vitrine.yaml")
	resources := flag.String("resources", "./resources", "resources root for rendered sites")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	_ = godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *stage, *query, *city, *limit, *configPath, *resources); err != nil {
		logger.Error("vitrine: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, stage, query, city string, limit int, configPath, resources string) error {
	switch stage {
	case "prospect", "draft", "render", "all":
	default:
		return fmt.Errorf("unknown stage %q (want prospect, draft, render or all)", stage)
	}
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: vitrine -stage prospect|draft|render|all -query <business type> [-city <city>]")
		os.Exit(1)
	}

	cfg, err := loadPipelineConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.ResourcesRoot == "" {
		cfg.ResourcesRoot = resources
	}

	var led *ledger.Ledger
	if cfg.LedgerPath != "" {
		led, err = ledger.Open(cfg.LedgerPath, ledger.WithLogger(logger))
		if err != nil {
			return err
		}
		defer led.Close()
	}

	runID := ""
	if led != nil {
		label := query
		if city != "" {
			label = query + " " + city
		}
		if runID, err = led.StartRun(ctx, stage, label, 0); err != nil {
			logger.Warn("vitrine: ledger start failed", "error", err)
		}
	}

	rendered, dropped, runErr := runStages(ctx, logger, cfg, stage, query, city, limit)

	if led != nil && runID != "" {
		if err := led.FinishRun(context.WithoutCancel(ctx), runID, rendered, dropped); err != nil {
			logger.Warn("vitrine: ledger finish failed", "error", err)
		}
	}
	return runErr
}

// runStages walks the pipeline as far as the requested stage and returns
// how many businesses made it through and how many were dropped on the way.
func runStages(ctx context.Context, logger *slog.Logger, cfg pipelineConfig, stage, query, city string, limit int) (int, int, error) {
	finder, err := prospect.New(prospect.Config{
		APIKey:      os.Getenv(cfg.PlacesKeyEnv),
		BaseURL:     cfg.PlacesBaseURL,
		MinWords:    cfg.MinWords,
		MinSections: cfg.MinSections,
		Logger:      logger,
	})
	if err != nil {
		return 0, 0, err
	}

	businesses, err := finder.Search(ctx, query, city, limit)
	if err != nil {
		return 0, 0, err
	}
	prospects, err := finder.Sift(ctx, businesses)
	if err != nil {
		return 0, 0, err
	}
	logger.Info("vitrine: prospecting done", "found", len(businesses), "kept", len(prospects))
	if stage == "prospect" {
		return len(prospects), len(businesses) - len(prospects), emitJSON(prospects)
	}

	gen, err := sitegen.New(sitegen.Config{
		SitesRoot:  cfg.ResourcesRoot,
		PhotoBase:  cfg.PhotoBase,
		PhotoCount: cfg.PhotoCount,
		Logger:     logger,
	})
	if err != nil {
		return 0, 0, err
	}
	drafter, err := pitch.New(ctx, pitch.Config{
		APIKey:    os.Getenv(cfg.GeminiKeyEnv),
		Model:     cfg.GeminiModel,
		Templates: gen.TemplateKeys(),
		Palettes:  gen.PaletteKeys(),
		Logger:    logger,
	})
	if err != nil {
		return 0, 0, err
	}

	drafted, err := drafter.DraftAll(ctx, prospects)
	if err != nil {
		return len(drafted), len(prospects) - len(drafted), err
	}
	if stage == "draft" {
		return len(drafted), len(prospects) - len(drafted), emitJSON(drafted)
	}

	folders, err := gen.RenderAll(ctx, drafted)
	if err != nil {
		return len(folders), len(prospects) - len(folders), err
	}
	logger.Info("vitrine: pipeline done", "rendered", len(folders), "root", cfg.ResourcesRoot)
	return len(folders), len(prospects) - len(folders), emitJSON(map[string]any{"folders": folders})
}

func emitJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
	return nil
}
