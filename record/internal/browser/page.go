package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/vitrine/record/internal/capture"
)

// page wraps a rod page. It implements both record.Page (navigation,
// pointer, eval) and capture.FrameSource (screencast frames).
type page struct {
	pg     *rod.Page
	log    *slog.Logger
	cancel context.CancelFunc
	closed atomic.Bool

	castMu   sync.Mutex
	casting  bool
	castStop context.CancelFunc
}

func newPage(ctx context.Context, br *Browser) (*page, error) {
	pg, err := stealth.Page(br.b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	pageCtx, cancel := context.WithCancel(ctx)
	p := &page{pg: pg.Context(pageCtx), log: br.log, cancel: cancel}

	if err := p.pg.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             br.cfg.Width,
		Height:            br.cfg.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		p.Close()
		return nil, fmt.Errorf("browser: set viewport: %w", err)
	}

	// Liveness watchdog: the wait function returns when the renderer
	// crashes, the page context ends, or the CDP connection drops.
	watch := p.pg.EachEvent(func(_ *proto.InspectorTargetCrashed) bool { return true })
	go func() {
		watch()
		p.closed.Store(true)
	}()

	return p, nil
}

func (p *page) Navigate(ctx context.Context, url string) error {
	if err := p.pg.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate: %w", err)
	}
	return nil
}

func (p *page) WaitReady(ctx context.Context) error {
	if err := p.pg.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load: %w", err)
	}
	return nil
}

// Eval runs a zero-argument arrow function in the page and returns its
// result as a string; planner scripts JSON-encode their own payloads.
func (p *page) Eval(ctx context.Context, js string) (string, error) {
	res, err := p.pg.Context(ctx).Eval(js)
	if err != nil {
		return "", fmt.Errorf("browser: eval: %w", err)
	}
	return res.Value.Str(), nil
}

func (p *page) MoveMouse(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.pg.Mouse.MoveTo(proto.Point{X: x, Y: y}); err != nil {
		return fmt.Errorf("browser: mouse move: %w", err)
	}
	return nil
}

func (p *page) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.pg.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click: %w", err)
	}
	return nil
}

func (p *page) Closed() bool {
	return p.closed.Load()
}

func (p *page) Close() error {
	p.closed.Store(true)
	p.cancel()
	if err := p.pg.Close(); err != nil {
		return fmt.Errorf("browser: close page: %w", err)
	}
	return nil
}

// StartScreencast begins JPEG frame delivery. Frames are acked as they
// arrive; when the encoder falls behind, frames are dropped rather than
// stalling CDP (ffmpeg consumes wallclock timestamps, so gaps are safe).
func (p *page) StartScreencast(ctx context.Context, opts capture.ScreencastOptions) (<-chan capture.Frame, error) {
	p.castMu.Lock()
	defer p.castMu.Unlock()
	if p.casting {
		return nil, fmt.Errorf("browser: screencast already running")
	}

	castCtx, cancel := context.WithCancel(ctx)
	pg := p.pg.Context(castCtx)

	err := proto.PageStartScreencast{
		Format:        proto.PageStartScreencastFormatJpeg,
		Quality:       intPtr(opts.Quality),
		MaxWidth:      intPtr(opts.MaxWidth),
		MaxHeight:     intPtr(opts.MaxHeight),
		EveryNthFrame: intPtr(opts.EveryNth),
	}.Call(pg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("browser: start screencast: %w", err)
	}

	frames := make(chan capture.Frame, 16)
	wait := pg.EachEvent(func(e *proto.PageScreencastFrame) {
		select {
		case frames <- capture.Frame{Data: e.Data}:
		default:
			p.log.Debug("browser: screencast frame dropped")
		}
		if err := (proto.PageScreencastFrameAck{SessionID: e.SessionID}).Call(pg); err != nil {
			p.log.Debug("browser: screencast ack failed", "error", err)
		}
	})
	go func() {
		wait()
		close(frames)
	}()

	p.casting = true
	p.castStop = cancel
	return frames, nil
}

// StopScreencast ends frame delivery and closes the frame channel.
func (p *page) StopScreencast() error {
	p.castMu.Lock()
	defer p.castMu.Unlock()
	if !p.casting {
		return nil
	}
	p.casting = false

	err := proto.PageStopScreencast{}.Call(p.pg)
	p.castStop()
	if err != nil && !p.closed.Load() {
		return fmt.Errorf("browser: stop screencast: %w", err)
	}
	return nil
}

func intPtr(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
