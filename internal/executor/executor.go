// File: internal/executor/executor.go
package executor

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nelieo/superagent/api/schemas"
	"github.com/nelieo/superagent/internal/config"
)

// settleDelay is the pause after a physical action so the UI can react
// before the next observation.
const settleDelay = 300 * time.Millisecond

// Executor is the production schemas.ActionPort. It validates coordinates
// against the screen bounds before dispatching, normalizes key names, and
// tracks aggregate action statistics.
type Executor struct {
	driver InputDriver
	cfg    config.ExecutorConfig
	logger *zap.Logger

	mu         sync.Mutex
	total      int
	successful int
	totalTime  time.Duration
}

// keyAliases normalizes model-produced key names to xdotool keysyms.
var keyAliases = map[string]string{
	"control": "ctrl",
	"ctl":     "ctrl",
	"enter":   "Return",
	"return":  "Return",
	"escape":  "Escape",
	"esc":     "Escape",
	"tab":     "Tab",
	"space":   "space",
	"cmd":     "super",
	"win":     "super",
}

// New creates an executor bound to the given driver.
func New(driver InputDriver, cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	return &Executor{
		driver: driver,
		cfg:    cfg,
		logger: logger.Named("executor"),
	}
}

// Perform dispatches one action through the driver and reports the outcome.
// Validation failures (bad coordinates, missing fields) fail locally and
// are never forwarded to the driver.
func (e *Executor) Perform(ctx context.Context, action schemas.Action) schemas.ActionResult {
	start := time.Now()

	err := e.dispatch(ctx, action)

	// Give the UI a beat to respond before the next observation.
	if err == nil && action.Type != schemas.ActionWait && action.Type != schemas.ActionDone {
		select {
		case <-time.After(settleDelay):
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	duration := time.Since(start)
	e.record(duration, err == nil)

	result := schemas.ActionResult{Success: err == nil, Duration: duration}
	if err != nil {
		result.Error = err.Error()
		e.logger.Warn("Action failed",
			zap.String("action", action.String()),
			zap.Error(err))
	} else {
		e.logger.Info("Action executed",
			zap.String("type", string(action.Type)),
			zap.Duration("duration", duration))
	}
	return result
}

func (e *Executor) dispatch(ctx context.Context, action schemas.Action) error {
	switch action.Type {
	case schemas.ActionClick:
		if err := e.validateCoordinates(action.X, action.Y); err != nil {
			return err
		}
		return e.driver.Click(ctx, action.X, action.Y)

	case schemas.ActionDoubleClick:
		if err := e.validateCoordinates(action.X, action.Y); err != nil {
			return err
		}
		return e.driver.DoubleClick(ctx, action.X, action.Y)

	case schemas.ActionRightClick:
		if err := e.validateCoordinates(action.X, action.Y); err != nil {
			return err
		}
		return e.driver.RightClick(ctx, action.X, action.Y)

	case schemas.ActionDrag:
		if err := e.validateCoordinates(action.X, action.Y); err != nil {
			return err
		}
		return e.driver.Drag(ctx, action.X, action.Y)

	case schemas.ActionTypeText:
		if action.Text == "" {
			return fmt.Errorf("%s: empty text to type", schemas.ErrCodeInvalidStep)
		}
		return e.driver.TypeText(ctx, action.Text)

	case schemas.ActionHotkey:
		if len(action.Keys) == 0 {
			return fmt.Errorf("%s: hotkey with no keys", schemas.ErrCodeInvalidStep)
		}
		keys := make([]string, len(action.Keys))
		for i, k := range action.Keys {
			keys[i] = normalizeKey(k)
		}
		return e.driver.Hotkey(ctx, keys)

	case schemas.ActionScroll:
		amount := action.Amount
		if amount == 0 {
			amount = -3 // default: scroll down a little
		}
		return e.driver.Scroll(ctx, amount)

	case schemas.ActionOpenApp:
		if action.App == "" {
			return fmt.Errorf("%s: open_app with no application", schemas.ErrCodeInvalidStep)
		}
		return e.driver.OpenApp(ctx, action.App)

	case schemas.ActionWait:
		secs := action.Amount
		if secs <= 0 {
			secs = 1
		}
		select {
		case <-time.After(time.Duration(secs) * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}

	case schemas.ActionDone:
		// Terminal marker; nothing to dispatch.
		return nil

	case schemas.ActionExplore, schemas.ActionVerify:
		// Meta actions are handled by the control loop, never dispatched.
		return nil

	default:
		return fmt.Errorf("%s: %q", schemas.ErrCodeUnknownAction, action.Type)
	}
}

// Observe captures the current screen as a PNG screenshot.
func (e *Executor) Observe(ctx context.Context) (*schemas.Screenshot, error) {
	data, err := e.driver.CaptureScreen(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", schemas.ErrCodeScreenCapture, err)
	}

	shot := &schemas.Screenshot{PNG: data}
	if cfg, err := png.DecodeConfig(bytes.NewReader(data)); err == nil {
		shot.Width = cfg.Width
		shot.Height = cfg.Height
	} else {
		shot.Width = e.cfg.ScreenWidth
		shot.Height = e.cfg.ScreenHeight
	}
	return shot, nil
}

// Stats reports aggregate dispatch statistics.
func (e *Executor) Stats() (total, successful int, avgDuration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.total > 0 {
		avgDuration = e.totalTime / time.Duration(e.total)
	}
	return e.total, e.successful, avgDuration
}

func (e *Executor) validateCoordinates(x, y int) error {
	if x < 0 || x >= e.cfg.ScreenWidth || y < 0 || y >= e.cfg.ScreenHeight {
		return fmt.Errorf("%s: (%d, %d) outside %dx%d",
			schemas.ErrCodeOutOfBounds, x, y, e.cfg.ScreenWidth, e.cfg.ScreenHeight)
	}
	return nil
}

func normalizeKey(key string) string {
	lower := strings.ToLower(strings.TrimSpace(key))
	if alias, ok := keyAliases[lower]; ok {
		return alias
	}
	return lower
}

func (e *Executor) record(duration time.Duration, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.total++
	e.totalTime += duration
	if success {
		e.successful++
	}
}
