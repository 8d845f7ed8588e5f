package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/vitrine/record"
)

func TestRecordSink_FullRun(t *testing.T) {
	l := testLedger(t)
	sink := NewRecordSink(l)
	ctx := context.Background()

	runID, err := sink.RunStarted(ctx, 2)
	if err != nil {
		t.Fatalf("RunStarted: %v", err)
	}

	sink.FolderDone(ctx, runID, record.FolderEvent{
		Folder:    "cafe_luna",
		VideoPath: "/srv/resources/cafe_luna/recording.mp4",
		TracePath: "/srv/resources/cafe_luna/recording.json",
		Duration:  3 * time.Second,
	})
	sink.FolderDone(ctx, runID, record.FolderEvent{
		Folder: "broken_shop",
		Err:    errors.New("no index.html"),
	})

	if err := sink.RunFinished(ctx, runID, 1, 1); err != nil {
		t.Fatalf("RunFinished: %v", err)
	}

	st, err := l.Status(ctx, 5)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(st.Runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(st.Runs))
	}
	run := st.Runs[0]
	if run.ID != runID || run.Stage != "record" {
		t.Errorf("run = %+v", run)
	}
	if run.FoldersOK != 1 || run.FoldersFailed != 1 || run.Status != "partial" {
		t.Errorf("run counters = %+v", run)
	}
	if len(st.RecentFailures) != 1 {
		t.Fatalf("failures = %d, want 1", len(st.RecentFailures))
	}
	fail := st.RecentFailures[0]
	if fail.Folder != "broken_shop" || fail.Detail != "no index.html" {
		t.Errorf("failure = %+v", fail)
	}
}

func TestRecordSink_DurationStored(t *testing.T) {
	l := testLedger(t)
	sink := NewRecordSink(l)
	ctx := context.Background()

	runID, err := sink.RunStarted(ctx, 1)
	if err != nil {
		t.Fatalf("RunStarted: %v", err)
	}
	sink.FolderDone(ctx, runID, record.FolderEvent{
		Folder:   "cafe_luna",
		Err:      errors.New("boom"),
		Duration: 1500 * time.Millisecond,
	})
	if err := sink.RunFinished(ctx, runID, 0, 1); err != nil {
		t.Fatalf("RunFinished: %v", err)
	}

	st, err := l.Status(ctx, 5)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(st.RecentFailures) != 1 {
		t.Fatalf("failures = %d, want 1", len(st.RecentFailures))
	}
	if got := st.RecentFailures[0].DurationMS; got != 1500 {
		t.Errorf("DurationMS = %d, want 1500", got)
	}
}
