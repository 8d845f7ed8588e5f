// Package record drives a real Chrome through a generated business site and
// captures the visit: a synthetic cursor glides between planned targets,
// the page scrolls smoothly between landmark regions, and a screencast is
// piped into ffmpeg producing recording.mp4 plus a recording.json trace in
// the business folder.
//
// The session controller only talks to narrow capability interfaces (Page,
// Browser, Recorder); record/internal/browser and record/internal/capture
// provide the rod and ffmpeg implementations, and tests substitute fakes.
package record

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/vitrine/websafe"
)

// Point is a viewport coordinate in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Target is one element the planner selected for a hover visit.
type Target struct {
	Point
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Tag   string  `json:"tag"`
	Label string  `json:"label"`
	Href  string  `json:"href,omitempty"`
}

// Region is a landmark section of the page, in document order.
type Region struct {
	Name string  `json:"name"`
	Top  float64 `json:"top"`
	H    float64 `json:"height"`
}

// Page is the narrow surface of a live browser page the session drives.
// Eval runs a zero-argument JS arrow function inside the page and returns
// its result serialized as a string; planner scripts stringify their own
// JSON so one round trip carries the whole answer.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context) error
	Eval(ctx context.Context, js string) (string, error)
	MoveMouse(ctx context.Context, x, y float64) error
	Click(ctx context.Context) error
	Closed() bool
	Close() error
}

// Browser owns one Chrome instance with its own profile directory.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher starts an isolated Browser bound to a profile directory.
type Launcher func(ctx context.Context, profileDir string) (Browser, error)

// Recorder captures a page into a video file. Start must only return once
// capture is actually running; Stop finalizes the file.
type Recorder interface {
	Start(ctx context.Context, page Page, dest string) error
	Stop() error
}

// RecorderFactory builds a fresh Recorder per session.
type RecorderFactory func() Recorder

// Deps are the runtime implementations a Service drives.
type Deps struct {
	Launch      Launcher
	NewRecorder RecorderFactory
}

// Service runs recording sessions over the resources root.
type Service struct {
	cfg      Config
	deps     Deps
	log      *slog.Logger
	events   EventSink
	notifier *Notifier
}

// Option customises a Service.
type Option func(*Service)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// WithEvents attaches a batch observer (the ledger adapter).
func WithEvents(e EventSink) Option { return func(s *Service) { s.events = e } }

// WithNotifier attaches a webhook notifier for batch summaries.
func WithNotifier(n *Notifier) Option { return func(s *Service) { s.notifier = n } }

// NewService validates deps and builds a Service.
func NewService(cfg Config, deps Deps, opts ...Option) (*Service, error) {
	if deps.Launch == nil {
		return nil, fmt.Errorf("record: Deps.Launch is required")
	}
	if deps.NewRecorder == nil {
		return nil, fmt.Errorf("record: Deps.NewRecorder is required")
	}
	cfg.applyDefaults()
	s := &Service{cfg: cfg, deps: deps, log: slog.Default(), events: nopSink{}}
	for _, o := range opts {
		o(s)
	}
	if s.events == nil {
		s.events = nopSink{}
	}
	return s, nil
}

// RecordFolder records a single business folder (by name, under the
// resources root) and returns the written trace.
func (s *Service) RecordFolder(ctx context.Context, folder string) (*Trace, error) {
	if err := websafe.ValidateFolder(folder); err != nil {
		return nil, fmt.Errorf("record: folder name: %w", err)
	}
	path, err := websafe.SafePath(s.cfg.ResourcesRoot, folder)
	if err != nil {
		return nil, fmt.Errorf("record: folder path: %w", err)
	}
	sess := newSession(s.cfg, s.deps, s.log)
	return sess.Run(ctx, folder, path)
}
