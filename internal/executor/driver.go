// File: internal/executor/driver.go

// Package executor implements the action port: it validates decided actions
// and dispatches them to the host display through an input driver. The
// default driver shells out to xdotool and scrot on an X11 display; tests
// inject a fake.
package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nelieo/superagent/internal/config"
)

// InputDriver abstracts the host input and capture mechanism. All methods
// perform exactly one physical operation; policy (validation, settle
// delays, stats) lives in the Executor.
type InputDriver interface {
	Click(ctx context.Context, x, y int) error
	DoubleClick(ctx context.Context, x, y int) error
	RightClick(ctx context.Context, x, y int) error
	Drag(ctx context.Context, x, y int) error
	TypeText(ctx context.Context, text string) error
	Hotkey(ctx context.Context, keys []string) error
	Scroll(ctx context.Context, amount int) error
	OpenApp(ctx context.Context, app string) error
	CaptureScreen(ctx context.Context) ([]byte, error)
}

// x11Driver drives a local X display with xdotool for input and scrot for
// capture.
type x11Driver struct {
	display   string
	typeDelay int // milliseconds between keystrokes
	logger    *zap.Logger
}

// NewX11Driver creates the production input driver for the configured
// display.
func NewX11Driver(cfg config.ExecutorConfig, logger *zap.Logger) InputDriver {
	delay := int(cfg.TypeDelay.Milliseconds())
	if delay <= 0 {
		delay = 12
	}
	return &x11Driver{
		display:   cfg.Display,
		typeDelay: delay,
		logger:    logger.Named("x11"),
	}
}

func (d *x11Driver) run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "DISPLAY="+d.display)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (d *x11Driver) clickButton(ctx context.Context, x, y, button, repeat int) error {
	args := []string{"mousemove", strconv.Itoa(x), strconv.Itoa(y), "click"}
	if repeat > 1 {
		args = append(args, "--repeat", strconv.Itoa(repeat), "--delay", "50")
	}
	args = append(args, strconv.Itoa(button))
	return d.run(ctx, "xdotool", args...)
}

func (d *x11Driver) Click(ctx context.Context, x, y int) error {
	return d.clickButton(ctx, x, y, 1, 1)
}

func (d *x11Driver) DoubleClick(ctx context.Context, x, y int) error {
	return d.clickButton(ctx, x, y, 1, 2)
}

func (d *x11Driver) RightClick(ctx context.Context, x, y int) error {
	return d.clickButton(ctx, x, y, 3, 1)
}

func (d *x11Driver) Drag(ctx context.Context, x, y int) error {
	if err := d.run(ctx, "xdotool", "mousedown", "1"); err != nil {
		return err
	}
	if err := d.run(ctx, "xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y)); err != nil {
		// Release the button even when the move fails.
		_ = d.run(ctx, "xdotool", "mouseup", "1")
		return err
	}
	return d.run(ctx, "xdotool", "mouseup", "1")
}

func (d *x11Driver) TypeText(ctx context.Context, text string) error {
	return d.run(ctx, "xdotool", "type", "--delay", strconv.Itoa(d.typeDelay), "--", text)
}

func (d *x11Driver) Hotkey(ctx context.Context, keys []string) error {
	return d.run(ctx, "xdotool", "key", strings.Join(keys, "+"))
}

func (d *x11Driver) Scroll(ctx context.Context, amount int) error {
	// X11 maps scrolling to buttons 4 (up) and 5 (down).
	button := 4
	if amount < 0 {
		button = 5
		amount = -amount
	}
	if amount == 0 {
		return nil
	}
	return d.run(ctx, "xdotool", "click", "--repeat", strconv.Itoa(amount), "--delay", "30", strconv.Itoa(button))
}

func (d *x11Driver) OpenApp(ctx context.Context, app string) error {
	cmd := exec.Command("setsid", app)
	cmd.Env = append(os.Environ(), "DISPLAY="+d.display)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launching %s: %w", app, err)
	}
	d.logger.Info("Launched application", zap.String("app", app), zap.Int("pid", cmd.Process.Pid))
	// Detach; the agent observes the result on screen, not via the process.
	return cmd.Process.Release()
}

func (d *x11Driver) CaptureScreen(ctx context.Context) ([]byte, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("superagent-shot-%d.png", os.Getpid()))
	defer os.Remove(path)

	if err := d.run(ctx, "scrot", "--overwrite", path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading screenshot: %w", err)
	}
	return data, nil
}
