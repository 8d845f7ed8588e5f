// Package chrome assembles the production dependencies for the recorder:
// real Chrome driven through rod, frames encoded by ffmpeg. Binaries use
// this instead of reaching into the recorder's internal packages; tests
// inject fakes through record.Deps directly.
package chrome

import (
	"log/slog"

	"github.com/hazyhaar/vitrine/record"
	"github.com/hazyhaar/vitrine/record/internal/browser"
	"github.com/hazyhaar/vitrine/record/internal/capture"
)

// Deps builds record.Deps for the given recorder config. Zero config
// values fall back to the same defaults the recorder itself applies.
func Deps(cfg record.Config, log *slog.Logger) record.Deps {
	return record.Deps{
		Launch: browser.NewLauncher(browser.Config{
			Headful: cfg.Headful,
			Display: cfg.Display,
			Width:   cfg.ViewportWidth,
			Height:  cfg.ViewportHeight,
			Logger:  log,
		}),
		NewRecorder: func() record.Recorder {
			return capture.New(capture.Config{
				Width:       cfg.ViewportWidth,
				Height:      cfg.ViewportHeight,
				FPS:         cfg.FPS,
				BitrateKbps: cfg.BitrateKbps,
				FFmpegPath:  cfg.FFmpegPath,
				Logger:      log,
			})
		},
	}
}
