package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Session records one business folder: launch an isolated browser, open the
// page, install the cursor overlay, start capture, run the interaction
// script, stop capture, tear everything down. The phases run in order and
// the deferred teardown stack guarantees stop-before-close on every exit
// path; the started flag ensures capture is stopped at most once and only
// if it actually started.
type Session struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	browser Browser
	page    Page
	rec     Recorder

	curX, curY float64
	started    bool
}

func newSession(cfg Config, deps Deps, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{cfg: cfg, deps: deps, log: log}
}

// Run processes one folder end to end and writes the recording.json sidecar
// on success. folder is the base name; path is its resolved directory.
func (s *Session) Run(ctx context.Context, folder, path string) (*Trace, error) {
	indexPath := filepath.Join(path, "index.html")
	if _, err := os.Stat(indexPath); err != nil {
		return nil, fmt.Errorf("record: no index.html in %s: %w", folder, err)
	}

	profileDir := filepath.Join(os.TempDir(), "vitrine-profile-"+folder)
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("record: profile dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(profileDir); err != nil {
			s.log.Debug("record: remove profile dir", "error", err)
		}
	}()

	browser, err := s.deps.Launch(ctx, profileDir)
	if err != nil {
		return nil, fmt.Errorf("record: launch browser: %w", err)
	}
	s.browser = browser
	defer func() {
		if err := browser.Close(); err != nil {
			s.log.Debug("record: close browser", "folder", folder, "error", err)
		}
	}()

	page, err := browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("record: open page: %w", err)
	}
	s.page = page
	defer func() {
		if err := page.Close(); err != nil {
			s.log.Debug("record: close page", "folder", folder, "error", err)
		}
	}()

	if err := s.openPage(ctx, folder, indexPath); err != nil {
		return nil, err
	}

	rec := s.deps.NewRecorder()
	s.rec = rec
	videoPath := filepath.Join(path, "recording.mp4")
	if err := rec.Start(ctx, page, videoPath); err != nil {
		return nil, fmt.Errorf("record: start capture: %w", err)
	}
	s.started = true
	defer s.stopCapture()

	if err := s.runScript(ctx); err != nil {
		return nil, err
	}

	// Finalize the video before the sidecar says it exists.
	s.stopCapture()

	trace, err := WriteTrace(path, folder)
	if err != nil {
		return nil, err
	}
	s.log.Info("record: session complete", "folder", folder, "video", videoPath)
	return trace, nil
}

// openPage navigates, waits for DOM readiness, installs the overlay and
// lets the page settle. Navigation and readiness are bounded by the action
// timeout.
func (s *Session) openPage(ctx context.Context, folder, indexPath string) error {
	actx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()

	url := s.pageURL(folder, indexPath)
	if err := s.page.Navigate(actx, url); err != nil {
		return fmt.Errorf("record: navigate %s: %w", url, err)
	}
	if err := s.page.WaitReady(actx); err != nil {
		return fmt.Errorf("record: wait ready: %w", err)
	}
	if _, err := s.page.Eval(actx, cursorInstallJS); err != nil {
		// The tour still works without the visible marker.
		s.log.Warn("record: cursor overlay install failed", "folder", folder, "error", err)
	}
	return s.settle(ctx)
}

func (s *Session) pageURL(folder, indexPath string) string {
	if s.cfg.PageURL != "" {
		return strings.TrimRight(s.cfg.PageURL, "/") + "/sites/" + folder + "/"
	}
	return "file://" + indexPath
}

// runScript executes the visit: tour each landmark region, then return to
// the top and click the third nav link. Per-step errors are downgraded to
// debug logs; only cancellation and a closed page abort the session.
func (s *Session) runScript(ctx context.Context) error {
	regions, err := listRegions(ctx, s.page)
	if err != nil {
		if fatal := s.interrupted(ctx); fatal != nil {
			return fatal
		}
		s.log.Warn("record: region discovery failed", "error", err)
	}

	for i, region := range regions {
		if err := s.interrupted(ctx); err != nil {
			return err
		}
		if err := s.visitRegion(ctx, i, region); err != nil {
			if errors.Is(err, ErrPageClosed) || ctx.Err() != nil {
				return err
			}
			s.log.Debug("record: region skipped", "region", region.Name, "error", err)
		}
	}

	if err := s.interrupted(ctx); err != nil {
		return err
	}
	return s.clickNav(ctx)
}

// visitRegion scrolls the region into view and hovers its planned targets.
func (s *Session) visitRegion(ctx context.Context, i int, region Region) error {
	offset := region.Top - s.cfg.HeaderOffset
	if offset < 0 {
		offset = 0
	}
	if err := s.smoothScroll(ctx, offset); err != nil {
		return err
	}
	if err := sleepCtx(ctx, s.cfg.SettlePause); err != nil {
		return err
	}

	targets, err := planRegion(ctx, s.page, i, &s.cfg)
	if err != nil {
		return err
	}
	s.log.Debug("record: region planned", "region", region.Name, "targets", len(targets))

	for _, target := range targets {
		if err := s.interrupted(ctx); err != nil {
			return err
		}
		if err := s.moveCursor(ctx, target.Point); err != nil {
			if errors.Is(err, ErrPageClosed) || ctx.Err() != nil {
				return err
			}
			s.log.Debug("record: hover skipped", "label", target.Label, "error", err)
			continue
		}
		if err := sleepCtx(ctx, s.cfg.HoverPause); err != nil {
			return err
		}
	}
	return nil
}

// clickNav scrolls back to the top and, when the page has at least three
// nav links, clicks the third one; an in-page anchor target gets a smooth
// scroll to its section. Every step is optional.
func (s *Session) clickNav(ctx context.Context) error {
	if err := s.smoothScroll(ctx, 0); err != nil {
		if errors.Is(err, ErrPageClosed) || ctx.Err() != nil {
			return err
		}
		s.log.Debug("record: scroll to top failed", "error", err)
		return nil
	}
	if err := sleepCtx(ctx, s.cfg.SettlePause); err != nil {
		return err
	}

	links, err := navLinks(ctx, s.page)
	if err != nil {
		if fatal := s.interrupted(ctx); fatal != nil {
			return fatal
		}
		s.log.Debug("record: nav link lookup failed", "error", err)
		return nil
	}
	if len(links) < 3 {
		s.log.Debug("record: nav click skipped", "links", len(links))
		return nil
	}

	third := links[2]
	if err := s.moveCursor(ctx, third.Point); err != nil {
		if errors.Is(err, ErrPageClosed) || ctx.Err() != nil {
			return err
		}
		s.log.Debug("record: nav hover failed", "error", err)
		return nil
	}
	if err := s.page.Click(ctx); err != nil {
		if fatal := s.interrupted(ctx); fatal != nil {
			return fatal
		}
		s.log.Debug("record: nav click failed", "error", err)
		return nil
	}
	s.log.Debug("record: nav link clicked", "label", third.Label, "href", third.Href)
	if err := sleepCtx(ctx, s.cfg.SettlePause); err != nil {
		return err
	}

	if strings.HasPrefix(third.Href, "#") && len(third.Href) > 1 {
		if y, ok := s.anchorOffset(ctx, third.Href); ok {
			offset := y - s.cfg.HeaderOffset
			if offset < 0 {
				offset = 0
			}
			if err := s.smoothScroll(ctx, offset); err != nil {
				if errors.Is(err, ErrPageClosed) || ctx.Err() != nil {
					return err
				}
				s.log.Debug("record: anchor scroll failed", "href", third.Href, "error", err)
			}
			if err := sleepCtx(ctx, s.cfg.SettlePause); err != nil {
				return err
			}
		}
	}
	return nil
}

// moveCursor glides from the tracked position to the target, issuing a
// device move and an overlay update per tick. The tracked position advances
// with each successful tick so an aborted animation resumes from where it
// stopped.
func (s *Session) moveCursor(ctx context.Context, to Point) error {
	from := Point{X: s.curX, Y: s.curY}
	dist := math.Hypot(to.X-from.X, to.Y-from.Y)
	if dist < 1 {
		return nil
	}
	steps := int(s.cfg.moveDuration(dist) / s.cfg.MotionTick)
	if steps < 2 {
		steps = 2
	}
	for _, pt := range easedPath(from, to, steps) {
		if err := s.interrupted(ctx); err != nil {
			return err
		}
		if err := s.page.MoveMouse(ctx, pt.X, pt.Y); err != nil {
			return fmt.Errorf("record: pointer move: %w", err)
		}
		if _, err := s.page.Eval(ctx, fmt.Sprintf(cursorUpdateJS, pt.X, pt.Y)); err != nil {
			return fmt.Errorf("record: cursor overlay update: %w", err)
		}
		s.curX, s.curY = pt.X, pt.Y
		if err := sleepCtx(ctx, s.cfg.MotionTick); err != nil {
			return err
		}
	}
	return nil
}

// smoothScroll eases the vertical offset from wherever the page currently
// is to target (clamped to the scrollable range).
func (s *Session) smoothScroll(ctx context.Context, target float64) error {
	raw, err := s.page.Eval(ctx, scrollStateJS)
	if err != nil {
		return fmt.Errorf("record: read scroll state: %w", err)
	}
	var state struct {
		Y   float64 `json:"y"`
		Max float64 `json:"max"`
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return fmt.Errorf("record: decode scroll state: %w", err)
	}
	if target > state.Max {
		target = state.Max
	}
	if target < 0 {
		target = 0
	}
	if math.Abs(target-state.Y) < 1 {
		return nil
	}

	steps := int(s.cfg.ScrollDuration / s.cfg.MotionTick)
	if steps < 2 {
		steps = 2
	}
	for _, off := range easedOffsets(state.Y, target, steps) {
		if err := s.interrupted(ctx); err != nil {
			return err
		}
		if _, err := s.page.Eval(ctx, fmt.Sprintf(scrollToJS, off)); err != nil {
			return fmt.Errorf("record: scroll: %w", err)
		}
		if err := sleepCtx(ctx, s.cfg.MotionTick); err != nil {
			return err
		}
	}
	return nil
}

// anchorOffset resolves an in-page anchor (#id) to its document offset.
func (s *Session) anchorOffset(ctx context.Context, href string) (float64, bool) {
	raw, err := s.page.Eval(ctx, fmt.Sprintf(anchorOffsetJS, href))
	if err != nil {
		s.log.Debug("record: anchor lookup failed", "href", href, "error", err)
		return 0, false
	}
	var y float64
	if err := json.Unmarshal([]byte(raw), &y); err != nil || y < 0 {
		return 0, false
	}
	return y, true
}

// interrupted is the single cancellation predicate: caller context first,
// then the page liveness check.
func (s *Session) interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.page != nil && s.page.Closed() {
		return ErrPageClosed
	}
	return nil
}

// settle pauses after a navigation or layout change.
func (s *Session) settle(ctx context.Context) error {
	return sleepCtx(ctx, s.cfg.SettlePause)
}

// stopCapture stops the recorder at most once, and only if capture started.
func (s *Session) stopCapture() {
	if !s.started {
		return
	}
	s.started = false
	if err := s.rec.Stop(); err != nil {
		s.log.Warn("record: stop capture", "error", err)
	}
}
