package ledger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/vitrine/dbopen"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	l := New(db)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestStartFinishRun(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	id, err := l.StartRun(ctx, "record", "", 3)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if id == "" {
		t.Fatal("StartRun: empty id")
	}

	var status string
	if err := l.db.QueryRow(`SELECT status FROM runs WHERE id = ?`, id).Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != "running" {
		t.Fatalf("status = %q, want running", status)
	}

	if err := l.FinishRun(ctx, id, 3, 0); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := l.db.QueryRow(`SELECT status FROM runs WHERE id = ?`, id).Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != "ok" {
		t.Fatalf("status = %q, want ok", status)
	}
}

func TestFinishRun_PartialOnFailures(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	id, err := l.StartRun(ctx, "record", "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.FinishRun(ctx, id, 1, 1); err != nil {
		t.Fatal(err)
	}

	var status string
	if err := l.db.QueryRow(`SELECT status FROM runs WHERE id = ?`, id).Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != "partial" {
		t.Fatalf("status = %q, want partial", status)
	}
}

func TestRecordAsync_FlushBarrier(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	id, err := l.StartRun(ctx, "record", "", 2)
	if err != nil {
		t.Fatal(err)
	}

	l.RecordAsync(&Event{RunID: id, Folder: "cafe_luna_paris_75010", Status: StatusOK, VideoPath: "sites/cafe_luna_paris_75010/recording.mp4", DurationMS: 42000})
	l.RecordAsync(&Event{RunID: id, Folder: "spa_zen_lyon_69003", Status: StatusFailed, Detail: "no index.html"})

	// Flush must make both rows visible without waiting for the ticker.
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var count int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM folder_events WHERE run_id = ?`, id).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("folder_events count = %d, want 2", count)
	}
}

func TestRecordAsync_SetsCreatedAt(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	id, _ := l.StartRun(ctx, "record", "", 1)
	before := time.Now().UnixMilli()
	l.RecordAsync(&Event{RunID: id, Folder: "f", Status: StatusOK})
	if err := l.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	var createdAt int64
	if err := l.db.QueryRow(`SELECT created_at FROM folder_events WHERE run_id = ?`, id).Scan(&createdAt); err != nil {
		t.Fatal(err)
	}
	if createdAt < before {
		t.Fatalf("created_at = %d, want >= %d", createdAt, before)
	}
}

func TestClose_DrainsBuffer(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	l := New(db)
	ctx := context.Background()

	id, err := l.StartRun(ctx, "record", "", 1)
	if err != nil {
		t.Fatal(err)
	}
	l.RecordAsync(&Event{RunID: id, Folder: "f1", Status: StatusOK})
	l.RecordAsync(&Event{RunID: id, Folder: "f2", Status: StatusOK})

	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM folder_events`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("count after Close = %d, want 2", count)
	}

	// Close is idempotent.
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStatus(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	id1, _ := l.StartRun(ctx, "record", "", 2)
	l.RecordAsync(&Event{RunID: id1, Folder: "ok_folder", Status: StatusOK})
	l.RecordAsync(&Event{RunID: id1, Folder: "bad_folder", Status: StatusFailed, Detail: "navigation timeout"})
	if err := l.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	l.FinishRun(ctx, id1, 1, 1)

	st, err := l.Status(ctx, 10)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(st.Runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(st.Runs))
	}
	if st.Runs[0].ID != id1 || st.Runs[0].Status != "partial" {
		t.Fatalf("run = %+v", st.Runs[0])
	}
	if len(st.RecentFailures) != 1 {
		t.Fatalf("failures = %d, want 1", len(st.RecentFailures))
	}
	if st.RecentFailures[0].Folder != "bad_folder" || st.RecentFailures[0].Detail != "navigation timeout" {
		t.Fatalf("failure = %+v", st.RecentFailures[0])
	}
}

func TestStatus_StageAndQuery(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	id, err := l.StartRun(ctx, "prospect", "coiffeur lyon", 0)
	if err != nil {
		t.Fatal(err)
	}
	l.FinishRun(ctx, id, 12, 0)

	st, err := l.Status(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if st.Runs[0].Stage != "prospect" {
		t.Fatalf("stage = %q, want prospect", st.Runs[0].Stage)
	}
	if st.Runs[0].Query != "coiffeur lyon" {
		t.Fatalf("query = %q", st.Runs[0].Query)
	}
}

func TestStatus_LimitAndOrder(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	// Insert runs with explicit timestamps so ordering is deterministic.
	for i := 0; i < 5; i++ {
		id := l.gen()
		if _, err := l.db.Exec(
			`INSERT INTO runs (id, started_at, folders_total, status) VALUES (?, ?, 1, 'ok')`,
			id, int64(1000+i)); err != nil {
			t.Fatal(err)
		}
	}

	st, err := l.Status(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(st.Runs))
	}
	if st.Runs[0].StartedAt != 1004 {
		t.Fatalf("newest first: got started_at %d, want 1004", st.Runs[0].StartedAt)
	}
}

var testMCPImpl = &mcp.Implementation{Name: "ledger-test", Version: "0.1.0"}

func mcpSession(t *testing.T, l *Ledger) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	l.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestMCP_Status(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	id, _ := l.StartRun(ctx, "record", "", 1)
	l.RecordAsync(&Event{RunID: id, Folder: "cafe", Status: StatusFailed, Detail: "chrome died"})
	if err := l.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	l.FinishRun(ctx, id, 0, 1)

	session := mcpSession(t, l)
	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "vitrine_status",
		Arguments: map[string]any{"limit": 5},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("tool error: %v", err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}

	var st Status
	if err := json.Unmarshal([]byte(tc.Text), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(st.Runs) != 1 || st.Runs[0].FoldersFailed != 1 {
		t.Fatalf("status = %+v", st)
	}
	if len(st.RecentFailures) != 1 || st.RecentFailures[0].Detail != "chrome died" {
		t.Fatalf("failures = %+v", st.RecentFailures)
	}
}
