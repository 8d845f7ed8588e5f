package browser

import (
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// startXvfb launches a virtual display sized to the configured viewport so
// a headful Chrome has something to render into on a server.
func (br *Browser) startXvfb() error {
	if br.xvfb != nil {
		return nil
	}

	screen := strconv.Itoa(br.cfg.Width) + "x" + strconv.Itoa(br.cfg.Height) + "x24"
	cmd := exec.Command("Xvfb", br.cfg.Display, "-screen", "0", screen, "-ac")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	br.xvfb = cmd

	// Give Xvfb a moment to initialise.
	time.Sleep(500 * time.Millisecond)

	br.log.Info("browser: xvfb started", "display", br.cfg.Display, "pid", cmd.Process.Pid)
	return nil
}

// stopXvfb kills the Xvfb process if this Browser started one.
func (br *Browser) stopXvfb() {
	if br.xvfb == nil {
		return
	}
	if br.xvfb.Process != nil {
		br.xvfb.Process.Kill()
		br.xvfb.Wait()
	}
	br.log.Info("browser: xvfb stopped", "display", br.cfg.Display)
	br.xvfb = nil
}
