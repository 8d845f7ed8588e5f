// Package capture encodes a Chrome screencast into recording.mp4 by piping
// JPEG frames through ffmpeg. The recorder never touches CDP itself: it
// asks the page for a frame channel and owns the encoder process around it.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	"github.com/hazyhaar/vitrine/record"
)

// Frame is one screencast frame, already decoded from base64.
type Frame struct {
	Data []byte
}

// ScreencastOptions mirror the CDP Page.startScreencast parameters the
// recorder cares about.
type ScreencastOptions struct {
	Quality   int // JPEG quality 1-100
	MaxWidth  int
	MaxHeight int
	EveryNth  int // deliver every nth frame; 1 = all
}

// FrameSource is the screencast half of a page. StartScreencast begins
// frame delivery on the returned channel; StopScreencast ends delivery and
// closes that channel.
type FrameSource interface {
	StartScreencast(ctx context.Context, opts ScreencastOptions) (<-chan Frame, error)
	StopScreencast() error
}

// Config tunes the encoder.
type Config struct {
	Width       int // output width, default 1280
	Height      int // output height, default 800
	FPS         int // default 24
	BitrateKbps int // default 3500
	Quality     int // screencast JPEG quality, default 80
	FFmpegPath  string
	Logger      *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 800
	}
	if c.FPS <= 0 {
		c.FPS = 24
	}
	if c.BitrateKbps <= 0 {
		c.BitrateKbps = 3500
	}
	if c.Quality <= 0 {
		c.Quality = 80
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Recorder pipes screencast frames into one ffmpeg process per session.
// It implements record.Recorder.
type Recorder struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	src     FrameSource
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  bytes.Buffer
	done    chan struct{}
	pumpErr error
}

// New builds a Recorder. One Recorder records one session.
func New(cfg Config) *Recorder {
	cfg.applyDefaults()
	return &Recorder{cfg: cfg, log: cfg.Logger}
}

// Start launches ffmpeg and begins streaming frames from the page into it.
// The page must expose a screencast (see FrameSource); the fakes used in
// session tests do not reach this code.
func (r *Recorder) Start(ctx context.Context, page record.Page, dest string) error {
	src, ok := page.(FrameSource)
	if !ok {
		return fmt.Errorf("capture: page %T does not expose a screencast", page)
	}

	ffmpeg, err := exec.LookPath(r.cfg.FFmpegPath)
	if err != nil {
		return fmt.Errorf("capture: ffmpeg not found: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return fmt.Errorf("capture: recorder already started")
	}

	args := buildArgs(r.cfg, dest)
	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	cmd.Stderr = &r.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("capture: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("capture: start ffmpeg: %w", err)
	}

	frames, err := src.StartScreencast(ctx, ScreencastOptions{
		Quality:   r.cfg.Quality,
		MaxWidth:  r.cfg.Width,
		MaxHeight: r.cfg.Height,
		EveryNth:  1,
	})
	if err != nil {
		stdin.Close()
		cmd.Process.Kill()
		cmd.Wait()
		return fmt.Errorf("capture: start screencast: %w", err)
	}

	r.src = src
	r.cmd = cmd
	r.stdin = stdin
	r.done = make(chan struct{})
	go r.pump(frames)

	r.log.Debug("capture: recording started", "dest", dest, "fps", r.cfg.FPS, "bitrate_kbps", r.cfg.BitrateKbps)
	return nil
}

// pump writes every frame to ffmpeg's stdin. Frames are complete JPEGs, so
// back-to-back writes form a valid MJPEG stream. After a write error the
// channel is still drained so the producer never blocks.
func (r *Recorder) pump(frames <-chan Frame) {
	defer close(r.done)
	for frame := range frames {
		if r.pumpErr != nil {
			continue
		}
		if _, err := r.stdin.Write(frame.Data); err != nil {
			r.pumpErr = err
		}
	}
}

// Stop ends the screencast, flushes the frame pipe and waits for ffmpeg to
// finalize the file. Safe to call twice; the second call is a no-op.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil {
		return nil
	}

	stopErr := r.src.StopScreencast()
	<-r.done
	r.stdin.Close()
	waitErr := r.cmd.Wait()
	r.cmd = nil

	if waitErr != nil {
		return fmt.Errorf("capture: ffmpeg exited: %w: %s", waitErr, tail(r.stderr.Bytes(), 512))
	}
	if stopErr != nil {
		return fmt.Errorf("capture: stop screencast: %w", stopErr)
	}
	if r.pumpErr != nil {
		return fmt.Errorf("capture: frame pipe: %w", r.pumpErr)
	}
	return nil
}

// buildArgs assembles the ffmpeg invocation: MJPEG frames on stdin, H.264
// in an MP4 out, letterboxed to the configured viewport so odd screencast
// dimensions cannot break encoding.
func buildArgs(cfg Config, dest string) []string {
	size := strconv.Itoa(cfg.Width) + ":" + strconv.Itoa(cfg.Height)
	bitrate := strconv.Itoa(cfg.BitrateKbps) + "k"
	bufsize := strconv.Itoa(cfg.BitrateKbps*2) + "k"
	return []string{
		"-y",
		"-loglevel", "error",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-use_wallclock_as_timestamps", "1",
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", bitrate,
		"-maxrate", bitrate,
		"-bufsize", bufsize,
		"-pix_fmt", "yuv420p",
		"-vf", "scale=" + size + ":force_original_aspect_ratio=decrease,pad=" + size + ":(ow-iw)/2:(oh-ih)/2",
		"-r", strconv.Itoa(cfg.FPS),
		"-movflags", "+faststart",
		dest,
	}
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
