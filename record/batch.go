package record

import (
	"context"
	"errors"
	"path/filepath"
	"time"
)

// EventSink receives batch lifecycle events. The ledger implements it; a
// nil sink is replaced by a no-op so recording works without persistence.
type EventSink interface {
	// RunStarted opens a run covering total folders and returns its ID.
	RunStarted(ctx context.Context, total int) (string, error)
	// FolderDone reports one finished folder, success or failure.
	FolderDone(ctx context.Context, runID string, ev FolderEvent)
	// RunFinished closes the run with final counts.
	RunFinished(ctx context.Context, runID string, ok, failed int) error
}

// FolderEvent describes the outcome of one folder within a batch.
type FolderEvent struct {
	Folder    string
	Err       error
	VideoPath string
	TracePath string
	Duration  time.Duration
}

// BatchResult summarizes a batch run.
type BatchResult struct {
	RunID      string            `json:"run_id,omitempty"`
	Processed  int               `json:"processed"`
	DurationMS int64             `json:"duration_ms"`
	Failures   map[string]string `json:"failures,omitempty"`
}

type nopSink struct{}

func (nopSink) RunStarted(context.Context, int) (string, error)  { return "", nil }
func (nopSink) FolderDone(context.Context, string, FolderEvent)  {}
func (nopSink) RunFinished(context.Context, string, int, int) error { return nil }

// RecordBatch records every business folder under the resources root in
// lexical order. One folder failing does not stop the rest: the error is
// logged, reported to the sink and collected; the batch moves on. Only
// context cancellation aborts the sweep. When at least one folder failed
// the returned error is a BatchError wrapping ErrBatchFailures.
func (s *Service) RecordBatch(ctx context.Context) (*BatchResult, error) {
	batchStart := time.Now()
	folders, err := ScanFolders(s.cfg.ResourcesRoot)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Failures: map[string]string{}}
	if len(folders) == 0 {
		s.log.Info("record: no business folders found", "root", s.cfg.ResourcesRoot)
		return result, nil
	}

	runID, err := s.events.RunStarted(ctx, len(folders))
	if err != nil {
		// Persistence trouble should not block recording.
		s.log.Warn("record: run start not persisted", "error", err)
	}
	result.RunID = runID
	s.log.Info("record: batch started", "run_id", runID, "folders", len(folders))

	for _, folder := range folders {
		if ctx.Err() != nil {
			s.log.Warn("record: batch interrupted", "run_id", runID, "done", result.Processed)
			break
		}
		start := time.Now()
		trace, err := s.RecordFolder(ctx, folder)
		ev := FolderEvent{Folder: folder, Err: err, Duration: time.Since(start)}
		if err != nil {
			result.Failures[folder] = err.Error()
			s.log.Error("record: folder failed", "run_id", runID, "folder", folder, "error", err)
		} else {
			dir := filepath.Join(s.cfg.ResourcesRoot, folder)
			ev.VideoPath = filepath.Join(dir, trace.Recording)
			ev.TracePath = filepath.Join(dir, "recording.json")
			s.log.Info("record: folder done", "run_id", runID, "folder", folder,
				"duration", ev.Duration.Round(time.Millisecond))
		}
		result.Processed++
		s.events.FolderDone(ctx, runID, ev)
	}

	result.DurationMS = time.Since(batchStart).Milliseconds()

	ok := result.Processed - len(result.Failures)
	if err := s.events.RunFinished(ctx, runID, ok, len(result.Failures)); err != nil {
		s.log.Warn("record: run finish not persisted", "run_id", runID, "error", err)
	}
	s.notify(ctx, result)

	if len(result.Failures) > 0 {
		return result, &BatchError{Failed: len(result.Failures), Total: result.Processed}
	}
	s.log.Info("record: batch complete", "run_id", runID, "folders", result.Processed)
	return result, nil
}

// notify posts the batch outcome to the configured webhook, if any.
// Delivery failures are logged, never returned.
func (s *Service) notify(ctx context.Context, result *BatchResult) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, result); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("record: webhook notify failed", "error", err)
	}
}
