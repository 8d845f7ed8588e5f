// Command vitrine_record records a synthetic browsing session for every
// business folder under the resources root, producing recording.mp4 and
// recording.json next to each folder's index.html.
//
// Usage:
//
//	vitrine_record -resources ./resources                 # record every folder
//	vitrine_record -resources ./resources -folder cafe_luna
//	vitrine_record -config vitrine.yaml -headful -display :99
//
// Exits 0 when every folder succeeds (or none exist), 1 on a fatal error,
// 2 when some folders failed but the batch completed.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/vitrine/ledger"
	"github.com/hazyhaar/vitrine/record"
	"github.com/hazyhaar/vitrine/record/chrome"
)

func main() {
	resources := flag.String("resources", "", "resources root holding business folders")
	configPath := flag.String("config", "", "path to vitrine.yaml")
	folder := flag.String("folder", "", "record a single folder instead of the whole root")
	headful := flag.Bool("headful", false, "run a visible Chrome (use -display for Xvfb)")
	display := flag.String("display", "", "Xvfb display to start and use, e.g. :99")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, logger, *configPath, *resources, *folder, *headful, *display)
	var batchErr *record.BatchError
	switch {
	case err == nil:
	case errors.As(err, &batchErr):
		logger.Error("vitrine_record: batch finished with failures",
			"failed", batchErr.Failed, "total", batchErr.Total)
		os.Exit(2)
	default:
		logger.Error("vitrine_record: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, resources, folder string, headful bool, display string) error {
	var cfg record.Config
	var err error
	if configPath != "" {
		if cfg, err = record.LoadConfig(configPath); err != nil {
			return err
		}
	}
	// Flags override the file.
	if resources != "" {
		cfg.ResourcesRoot = resources
	}
	if headful {
		cfg.Headful = true
	}
	if display != "" {
		cfg.Display = display
	}

	deps := chrome.Deps(cfg, logger)

	opts := []record.Option{record.WithLogger(logger)}

	if cfg.LedgerPath != "" {
		led, err := ledger.Open(cfg.LedgerPath, ledger.WithLogger(logger))
		if err != nil {
			return err
		}
		defer led.Close()
		opts = append(opts, record.WithEvents(ledger.NewRecordSink(led)))
	}
	if cfg.WebhookURL != "" {
		opts = append(opts, record.WithNotifier(record.NewNotifier(cfg.WebhookURL, record.WithNotifierLogger(logger))))
	}

	svc, err := record.NewService(cfg, deps, opts...)
	if err != nil {
		return err
	}

	if folder != "" {
		trace, err := svc.RecordFolder(ctx, folder)
		if err != nil {
			return err
		}
		logger.Info("vitrine_record: folder recorded", "folder", trace.BusinessFolder, "video", trace.Recording)
		return nil
	}

	result, err := svc.RecordBatch(ctx)
	if err != nil {
		return err
	}
	logger.Info("vitrine_record: batch complete", "run_id", result.RunID, "processed", result.Processed)
	return nil
}
