package main

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/vitrine/ledger"
)

func writeFolder(t *testing.T, root, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for f, content := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func openTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { led.Close() })
	return led
}

func TestRouter_IndexListsFolders(t *testing.T) {
	root := t.TempDir()
	writeFolder(t, root, "salon_lumiere", map[string]string{
		"index.html":    "<html></html>",
		"recording.mp4": "x",
	})
	writeFolder(t, root, "cafe_luna", map[string]string{
		"index.html": "<html></html>",
	})

	h, err := newRouter(root, nil)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("index: got %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"salon_lumiere",
		"cafe_luna",
		`/sites/salon_lumiere/recording.mp4`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestRouter_IndexEmptyRoot(t *testing.T) {
	h, err := newRouter(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("empty index: got %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Aucun dossier") {
		t.Errorf("expected empty-state message, got %q", w.Body.String())
	}
}

func TestRouter_ServesSiteFile(t *testing.T) {
	root := t.TempDir()
	writeFolder(t, root, "cafe_luna", map[string]string{
		"index.html": "<html><body>Café Luna</body></html>",
	})

	h, err := newRouter(root, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Bare folder URL serves the folder's index.html.
	req := httptest.NewRequest("GET", "/sites/cafe_luna/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("site: got %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Café Luna") {
		t.Errorf("site body missing content, got %q", w.Body.String())
	}
}

func TestRouter_SiteRedirectWithoutSlash(t *testing.T) {
	root := t.TempDir()
	writeFolder(t, root, "cafe_luna", map[string]string{"index.html": "<html></html>"})

	h, err := newRouter(root, nil)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/sites/cafe_luna", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != 301 {
		t.Fatalf("redirect: got %d, want 301", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/sites/cafe_luna/" {
		t.Errorf("Location: got %q, want %q", loc, "/sites/cafe_luna/")
	}
}

func TestRouter_BlocksTraversal(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "resources")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "secret.txt"), []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}

	h, err := newRouter(root, nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{
		"/sites/../secret.txt",
		"/sites/alpha/../../secret.txt",
	} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != 404 {
			t.Errorf("%s: got %d, want 404", path, w.Code)
		}
	}
}

func TestRouter_StatusWithoutLedger(t *testing.T) {
	h, err := newRouter(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != 404 {
		t.Fatalf("status without ledger: got %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ledger not configured") {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestRouter_StatusFromLedger(t *testing.T) {
	led := openTestLedger(t)
	if _, err := led.StartRun(context.Background(), "record", "coiffeur lyon", 3); err != nil {
		t.Fatal(err)
	}

	h, err := newRouter(t.TempDir(), &statusCache{led: led})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	var st ledger.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(st.Runs) != 1 {
		t.Fatalf("runs: got %d, want 1", len(st.Runs))
	}
	if st.Runs[0].Stage != "record" {
		t.Errorf("stage: got %q, want %q", st.Runs[0].Stage, "record")
	}
}

func TestStatusCache_ServesCachedUntilRefresh(t *testing.T) {
	led := openTestLedger(t)
	ctx := context.Background()
	if _, err := led.StartRun(ctx, "record", "première", 1); err != nil {
		t.Fatal(err)
	}

	cache := &statusCache{led: led}
	st, err := cache.get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Runs) != 1 {
		t.Fatalf("initial runs: got %d, want 1", len(st.Runs))
	}

	if _, err := led.StartRun(ctx, "record", "deuxième", 1); err != nil {
		t.Fatal(err)
	}

	// Cached aggregate until a refresh.
	st, err = cache.get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Runs) != 1 {
		t.Fatalf("cached runs: got %d, want 1", len(st.Runs))
	}

	st, err = cache.refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Runs) != 2 {
		t.Fatalf("refreshed runs: got %d, want 2", len(st.Runs))
	}
}

func TestRouter_Healthz(t *testing.T) {
	h, err := newRouter(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("healthz: got %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("healthz body %q", w.Body.String())
	}
}

func TestLedgerVersion_MovesOnEveryWriteKind(t *testing.T) {
	led := openTestLedger(t)
	ctx := context.Background()

	base, err := ledgerVersion(ctx, led.DB())
	if err != nil {
		t.Fatalf("ledgerVersion on empty ledger: %v", err)
	}

	runID, err := led.StartRun(ctx, "record", "", 1)
	if err != nil {
		t.Fatal(err)
	}
	afterStart, err := ledgerVersion(ctx, led.DB())
	if err != nil {
		t.Fatal(err)
	}
	if afterStart <= base {
		t.Errorf("token after StartRun = %d, want > %d", afterStart, base)
	}

	led.RecordAsync(&ledger.Event{RunID: runID, Folder: "cafe_luna", Status: ledger.StatusOK})
	if err := led.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	afterEvent, err := ledgerVersion(ctx, led.DB())
	if err != nil {
		t.Fatal(err)
	}
	if afterEvent <= afterStart {
		t.Errorf("token after folder event = %d, want > %d", afterEvent, afterStart)
	}

	if err := led.FinishRun(ctx, runID, 1, 0); err != nil {
		t.Fatal(err)
	}
	afterFinish, err := ledgerVersion(ctx, led.DB())
	if err != nil {
		t.Fatal(err)
	}
	if afterFinish <= afterEvent {
		t.Errorf("token after FinishRun = %d, want > %d", afterFinish, afterEvent)
	}
}
