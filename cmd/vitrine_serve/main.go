// Command vitrine_serve previews generated sites and recordings in a
// browser and, optionally, exposes the pipeline tools over MCP.
//
// Usage:
//
//	vitrine_serve -addr :8080 -resources ./resources
//	vitrine_serve -resources ./resources -db vitrine.db
//	vitrine_serve -config vitrine.yaml -mcp stdio
//
// GET / lists the business folders, GET /sites/<folder>/ serves a folder's
// site and artifacts, GET /api/status reports recent runs from the ledger,
// GET /healthz answers ok. With -mcp stdio the pipeline tools additionally
// speak MCP on stdin/stdout; logs go to stderr either way.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/vitrine/ledger"
	"github.com/hazyhaar/vitrine/pitch"
	"github.com/hazyhaar/vitrine/prospect"
	"github.com/hazyhaar/vitrine/record"
	"github.com/hazyhaar/vitrine/record/chrome"
	"github.com/hazyhaar/vitrine/shield"
	"github.com/hazyhaar/vitrine/sitegen"
	"github.com/hazyhaar/vitrine/watch"
	"github.com/hazyhaar/vitrine/websafe"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	resources := flag.String("resources", "./resources", "resources root holding business folders")
	dbPath := flag.String("db", "", "ledger database (enables /api/status and the status tool)")
	configPath := flag.String("config", "", "path to vitrine.yaml")
	mcpMode := flag.String("mcp", "off", "MCP transport: stdio or off")
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

	if err := run(ctx, logger, *addr, *resources, *dbPath, *configPath, *mcpMode); err != nil {
		logger.Error("vitrine_serve: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, addr, resources, dbPath, configPath, mcpMode string) error {
	switch mcpMode {
	case "stdio", "off":
	default:
		return fmt.Errorf("unknown -mcp mode %q (want stdio or off)", mcpMode)
	}

	cfg, err := loadServeConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.ResourcesRoot == "" {
		cfg.ResourcesRoot = resources
	}
	if dbPath == "" {
		dbPath = cfg.LedgerPath
	}

	var led *ledger.Ledger
	if dbPath != "" {
		if led, err = ledger.Open(dbPath, ledger.WithLogger(logger)); err != nil {
			return err
		}
		defer led.Close()
	}

	// The status cache follows the ledger database: a watcher refreshes
	// the aggregate whenever a run writes.
	var cache *statusCache
	if led != nil {
		cache = &statusCache{led: led}
		w := watch.New(led.DB(), watch.Options{
			Interval: 2 * time.Second,
			Debounce: 500 * time.Millisecond,
			Detector: ledgerVersion,
			Logger:   logger,
		})
		go w.OnChange(ctx, func() error {
			rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			_, err := cache.refresh(rctx)
			return err
		})
	}

	router, err := newRouter(cfg.ResourcesRoot, cache)
	if err != nil {
		return err
	}

	if mcpMode == "stdio" {
		msrv := mcp.NewServer(&mcp.Implementation{Name: "vitrine", Version: "1.0.0"}, nil)
		if err := registerTools(ctx, logger, cfg, configPath, led, msrv); err != nil {
			return err
		}
		go func() {
			logger.Info("vitrine_serve: MCP stdio starting")
			if err := msrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("vitrine_serve: MCP stdio", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("vitrine_serve: listening", "addr", addr, "resources", cfg.ResourcesRoot)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("vitrine_serve: server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("vitrine_serve: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// registerTools wires every pipeline tool the serve process can provide.
// Drafting needs a Gemini key; without one that tool is skipped so the rest
// of the surface still works.
func registerTools(ctx context.Context, logger *slog.Logger, cfg serveConfig, configPath string, led *ledger.Ledger, srv *mcp.Server) error {
	finder, err := prospect.New(prospect.Config{
		APIKey:      os.Getenv(cfg.PlacesKeyEnv),
		BaseURL:     cfg.PlacesBaseURL,
		MinWords:    cfg.MinWords,
		MinSections: cfg.MinSections,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	finder.RegisterMCP(srv)

	gen, err := sitegen.New(sitegen.Config{
		SitesRoot:  cfg.ResourcesRoot,
		PhotoBase:  cfg.PhotoBase,
		PhotoCount: cfg.PhotoCount,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	gen.RegisterMCP(srv)

	if key := os.Getenv(cfg.GeminiKeyEnv); key != "" {
		drafter, err := pitch.New(ctx, pitch.Config{
			APIKey:    key,
			Model:     cfg.GeminiModel,
			Templates: gen.TemplateKeys(),
			Palettes:  gen.PaletteKeys(),
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		drafter.RegisterMCP(srv)
	} else {
		logger.Warn("vitrine_serve: draft tool disabled", "missing", cfg.GeminiKeyEnv)
	}

	var rcfg record.Config
	if configPath != "" {
		if rcfg, err = record.LoadConfig(configPath); err != nil {
			return err
		}
	}
	if rcfg.ResourcesRoot == "" {
		rcfg.ResourcesRoot = cfg.ResourcesRoot
	}
	recOpts := []record.Option{record.WithLogger(logger)}
	if led != nil {
		recOpts = append(recOpts, record.WithEvents(ledger.NewRecordSink(led)))
	}
	if rcfg.WebhookURL != "" {
		recOpts = append(recOpts, record.WithNotifier(
			record.NewNotifier(rcfg.WebhookURL, record.WithNotifierLogger(logger))))
	}
	rec, err := record.NewService(rcfg, chrome.Deps(rcfg, logger), recOpts...)
	if err != nil {
		return err
	}
	rec.RegisterMCP(srv)

	if led != nil {
		led.RegisterMCP(srv)
	}
	return nil
}

const statusRunLimit = 20

// ledgerVersion is the change token the status watcher polls: any run
// insert, run close, or folder event moves it. PRAGMA data_version only
// sees other connections' writes, so it would miss the in-process MCP
// tool path; counting rows does not.
func ledgerVersion(ctx context.Context, db *sql.DB) (int64, error) {
	const q = `SELECT (SELECT COALESCE(MAX(id), 0) FROM folder_events)
		+ (SELECT COUNT(*) FROM runs)
		+ (SELECT COUNT(*) FROM runs WHERE finished_at IS NOT NULL)`
	var token int64
	err := db.QueryRowContext(ctx, q).Scan(&token)
	return token, err
}

// statusCache keeps the last ledger aggregate so /api/status does not hit
// SQLite on every poll.
type statusCache struct {
	led *ledger.Ledger
	cur atomic.Pointer[ledger.Status]
}

func (c *statusCache) get(ctx context.Context) (*ledger.Status, error) {
	if s := c.cur.Load(); s != nil {
		return s, nil
	}
	return c.refresh(ctx)
}

func (c *statusCache) refresh(ctx context.Context) (*ledger.Status, error) {
	s, err := c.led.Status(ctx, statusRunLimit)
	if err != nil {
		return nil, err
	}
	c.cur.Store(s)
	return s, nil
}

// folderEntry is one row of the index page.
type folderEntry struct {
	Name     string
	HasSite  bool
	HasVideo bool
	HasTrace bool
}

// newRouter builds the preview routes. cache may be nil when no ledger is
// configured; /api/status then answers 404.
func newRouter(resources string, cache *statusCache) (http.Handler, error) {
	tmpl, err := template.New("index").Parse(indexHTML)
	if err != nil {
		return nil, fmt.Errorf("parse index template: %w", err)
	}

	r := chi.NewRouter()
	for _, mw := range shield.PreviewStack() {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		folders, err := record.ScanFolders(resources)
		if err != nil {
			shield.GetLogger(r.Context()).Error("scan resources", "error", err)
			http.Error(w, "resources root unavailable", http.StatusInternalServerError)
			return
		}
		entries := make([]folderEntry, 0, len(folders))
		for _, f := range folders {
			dir := filepath.Join(resources, f)
			entries = append(entries, folderEntry{
				Name:     f,
				HasSite:  fileExists(filepath.Join(dir, "index.html")),
				HasVideo: fileExists(filepath.Join(dir, "recording.mp4")),
				HasTrace: fileExists(filepath.Join(dir, "recording.json")),
			})
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, entries); err != nil {
			shield.GetLogger(r.Context()).Error("render index", "error", err)
		}
	})

	r.Get("/sites/{folder}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
	})

	r.Get("/sites/{folder}/*", func(w http.ResponseWriter, r *http.Request) {
		folder := chi.URLParam(r, "folder")
		if err := websafe.ValidateFolder(folder); err != nil {
			http.NotFound(w, r)
			return
		}
		rest := chi.URLParam(r, "*")
		if rest == "" {
			rest = "index.html"
		}
		full, err := websafe.SafePath(resources, folder+"/"+rest)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, full)
	})

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			writeJSON(w, 404, map[string]string{"error": "ledger not configured"})
			return
		}
		st, err := cache.get(r.Context())
		if err != nil {
			shield.GetLogger(r.Context()).Error("status query", "error", err)
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, st)
	})

	return r, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

const indexHTML = `<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>Vitrines</title>
<style>
  body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 720px; color: #1f2430; }
  h1 { font-size: 1.4rem; }
  table { border-collapse: collapse; width: 100%; }
  th, td { text-align: left; padding: 0.5rem 0.75rem; border-bottom: 1px solid #e3e6ec; }
  a { color: #0a5bd3; text-decoration: none; }
  .missing { color: #9aa1ad; }
</style>
</head>
<body>
<h1>Vitrines générées</h1>
{{if .}}
<table>
<tr><th>Dossier</th><th>Site</th><th>Vidéo</th><th>Trace</th></tr>
{{range .}}
<tr>
<td>{{.Name}}</td>
<td>{{if .HasSite}}<a href="/sites/{{.Name}}/">voir</a>{{else}}<span class="missing">non</span>{{end}}</td>
<td>{{if .HasVideo}}<a href="/sites/{{.Name}}/recording.mp4">mp4</a>{{else}}<span class="missing">non</span>{{end}}</td>
<td>{{if .HasTrace}}<a href="/sites/{{.Name}}/recording.json">json</a>{{else}}<span class="missing">non</span>{{end}}</td>
</tr>
{{end}}
</table>
{{else}}
<p>Aucun dossier dans la racine des ressources.</p>
{{end}}
</body>
</html>
`

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
