package ledger

import (
	"context"

	"github.com/hazyhaar/vitrine/record"
)

// RecordSink adapts the ledger to the recorder's event seam: one runs row
// per batch, one folder_events row per folder outcome.
type RecordSink struct {
	l *Ledger
}

var _ record.EventSink = (*RecordSink)(nil)

// NewRecordSink wraps a ledger for use as the recorder's event sink.
func NewRecordSink(l *Ledger) *RecordSink { return &RecordSink{l: l} }

func (s *RecordSink) RunStarted(ctx context.Context, total int) (string, error) {
	return s.l.StartRun(ctx, "record", "", total)
}

func (s *RecordSink) FolderDone(_ context.Context, runID string, ev record.FolderEvent) {
	e := &Event{
		RunID:      runID,
		Folder:     ev.Folder,
		Status:     StatusOK,
		VideoPath:  ev.VideoPath,
		TracePath:  ev.TracePath,
		DurationMS: ev.Duration.Milliseconds(),
	}
	if ev.Err != nil {
		e.Status = StatusFailed
		e.Detail = ev.Err.Error()
	}
	s.l.RecordAsync(e)
}

// RunFinished flushes queued events before closing the run row so the
// final counters and the per-folder rows land together.
func (s *RecordSink) RunFinished(ctx context.Context, runID string, ok, failed int) error {
	if err := s.l.Flush(ctx); err != nil {
		return err
	}
	return s.l.FinishRun(ctx, runID, ok, failed)
}
