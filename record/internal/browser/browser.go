// Package browser is the rod/CDP implementation behind the recorder: it
// launches one Chrome per session with an isolated profile, applies the
// stealth patches and hands out pages that also expose the screencast
// FrameSource used by the capture encoder.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/vitrine/record"
)

// Config configures Chrome for a recording session.
type Config struct {
	// Headful runs a visible Chrome. Combine with Display to render into
	// an Xvfb virtual screen on servers.
	Headful bool

	// Display is the Xvfb display to start and target in headful mode,
	// e.g. ":99". Empty means use the environment's DISPLAY as-is.
	Display string

	// Width and Height set both the window size and the page viewport.
	Width  int
	Height int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 800
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser owns one Chrome process plus its launcher state and, in headful
// mode, the Xvfb display serving it. It implements record.Browser.
type Browser struct {
	cfg  Config
	log  *slog.Logger
	b    *rod.Browser
	lnch *launcher.Launcher
	xvfb *exec.Cmd
}

// NewLauncher adapts this package to the recorder's Launcher seam: every
// call starts a fresh Chrome bound to the given profile directory.
func NewLauncher(cfg Config) record.Launcher {
	return func(ctx context.Context, profileDir string) (record.Browser, error) {
		return Launch(ctx, cfg, profileDir)
	}
}

// Launch starts Chrome with the recording flag set: no first-run chrome,
// autoplay allowed, automation hints suppressed, audio muted.
func Launch(ctx context.Context, cfg Config, profileDir string) (*Browser, error) {
	cfg.defaults()
	br := &Browser{cfg: cfg, log: cfg.Logger}

	if cfg.Headful && cfg.Display != "" {
		if err := br.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	l := launcher.New().
		Headless(!cfg.Headful).
		UserDataDir(profileDir).
		Set("no-sandbox").
		Set("autoplay-policy", "no-user-gesture-required").
		Set("disable-infobars").
		Set("disable-blink-features", "AutomationControlled").
		Set("mute-audio").
		Set("window-size", strconv.Itoa(cfg.Width)+","+strconv.Itoa(cfg.Height))

	if cfg.Headful && cfg.Display != "" {
		l = l.Env(append(os.Environ(), "DISPLAY="+cfg.Display)...)
	}

	wsURL, err := l.Launch()
	if err != nil {
		br.stopXvfb()
		return nil, fmt.Errorf("browser: launch: %w", err)
	}
	br.lnch = l

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		br.lnch.Cleanup()
		br.stopXvfb()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	br.b = b

	cfg.Logger.Debug("browser: chrome launched",
		"headful", cfg.Headful, "profile", profileDir, "url", wsURL)
	return br, nil
}

// NewPage opens a stealth page sized to the configured viewport.
func (br *Browser) NewPage(ctx context.Context) (record.Page, error) {
	return newPage(ctx, br)
}

// Close shuts down Chrome, its launcher state, and Xvfb if this Browser
// started one.
func (br *Browser) Close() error {
	var firstErr error
	if br.b != nil {
		if err := br.b.Close(); err != nil {
			firstErr = fmt.Errorf("browser: close chrome: %w", err)
		}
		br.b = nil
	}
	if br.lnch != nil {
		br.lnch.Cleanup()
		br.lnch = nil
	}
	br.stopXvfb()
	return firstErr
}
