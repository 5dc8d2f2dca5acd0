// File: internal/executor/executor_test.go
package executor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nelieo/superagent/api/schemas"
	"github.com/nelieo/superagent/internal/config"
)

// fakeDriver records calls instead of touching a display.
type fakeDriver struct {
	calls   []string
	lastX   int
	lastY   int
	text    string
	keys    []string
	amount  int
	app     string
	failure error
	shot    []byte
}

func (f *fakeDriver) note(call string) error {
	f.calls = append(f.calls, call)
	return f.failure
}

func (f *fakeDriver) Click(_ context.Context, x, y int) error {
	f.lastX, f.lastY = x, y
	return f.note("click")
}
func (f *fakeDriver) DoubleClick(_ context.Context, x, y int) error {
	f.lastX, f.lastY = x, y
	return f.note("double_click")
}
func (f *fakeDriver) RightClick(_ context.Context, x, y int) error {
	f.lastX, f.lastY = x, y
	return f.note("right_click")
}
func (f *fakeDriver) Drag(_ context.Context, x, y int) error {
	f.lastX, f.lastY = x, y
	return f.note("drag")
}
func (f *fakeDriver) TypeText(_ context.Context, text string) error {
	f.text = text
	return f.note("type")
}
func (f *fakeDriver) Hotkey(_ context.Context, keys []string) error {
	f.keys = keys
	return f.note("hotkey")
}
func (f *fakeDriver) Scroll(_ context.Context, amount int) error {
	f.amount = amount
	return f.note("scroll")
}
func (f *fakeDriver) OpenApp(_ context.Context, app string) error {
	f.app = app
	return f.note("open_app")
}
func (f *fakeDriver) CaptureScreen(context.Context) ([]byte, error) {
	if f.failure != nil {
		return nil, f.failure
	}
	return f.shot, nil
}

func testExecutorConfig() config.ExecutorConfig {
	return config.ExecutorConfig{
		Display:      ":0",
		ScreenWidth:  1920,
		ScreenHeight: 1080,
	}
}

func newTestExecutor(t *testing.T, driver InputDriver) *Executor {
	t.Helper()
	return New(driver, testExecutorConfig(), zaptest.NewLogger(t))
}

func TestExecutor_Perform(t *testing.T) {
	tests := []struct {
		name   string
		action schemas.Action
		verify func(t *testing.T, d *fakeDriver)
	}{
		{
			name:   "click",
			action: schemas.Action{Type: schemas.ActionClick, X: 100, Y: 200},
			verify: func(t *testing.T, d *fakeDriver) {
				assert.Equal(t, []string{"click"}, d.calls)
				assert.Equal(t, 100, d.lastX)
				assert.Equal(t, 200, d.lastY)
			},
		},
		{
			name:   "type text",
			action: schemas.Action{Type: schemas.ActionTypeText, Text: "hello world"},
			verify: func(t *testing.T, d *fakeDriver) {
				assert.Equal(t, "hello world", d.text)
			},
		},
		{
			name:   "hotkey normalizes keys",
			action: schemas.Action{Type: schemas.ActionHotkey, Keys: []string{"Control", "T"}},
			verify: func(t *testing.T, d *fakeDriver) {
				assert.Equal(t, []string{"ctrl", "t"}, d.keys)
			},
		},
		{
			name:   "scroll defaults to down",
			action: schemas.Action{Type: schemas.ActionScroll},
			verify: func(t *testing.T, d *fakeDriver) {
				assert.Equal(t, -3, d.amount)
			},
		},
		{
			name:   "open app",
			action: schemas.Action{Type: schemas.ActionOpenApp, App: "firefox"},
			verify: func(t *testing.T, d *fakeDriver) {
				assert.Equal(t, "firefox", d.app)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := &fakeDriver{}
			exec := newTestExecutor(t, driver)

			result := exec.Perform(context.Background(), tt.action)
			require.True(t, result.Success, result.Error)
			tt.verify(t, driver)
		})
	}
}

func TestExecutor_BoundsValidation(t *testing.T) {
	tests := []struct {
		name string
		x, y int
	}{
		{"negative x", -1, 100},
		{"negative y", 100, -1},
		{"x at width", 1920, 100},
		{"y at height", 100, 1080},
		{"far outside", 5000, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := &fakeDriver{}
			exec := newTestExecutor(t, driver)

			result := exec.Perform(context.Background(),
				schemas.Action{Type: schemas.ActionClick, X: tt.x, Y: tt.y})

			assert.False(t, result.Success)
			assert.Contains(t, result.Error, string(schemas.ErrCodeOutOfBounds))
			assert.Empty(t, driver.calls, "invalid actions must not reach the driver")
		})
	}
}

func TestExecutor_LocalValidationFailures(t *testing.T) {
	driver := &fakeDriver{}
	exec := newTestExecutor(t, driver)

	t.Run("empty type text", func(t *testing.T) {
		result := exec.Perform(context.Background(), schemas.Action{Type: schemas.ActionTypeText})
		assert.False(t, result.Success)
	})

	t.Run("hotkey without keys", func(t *testing.T) {
		result := exec.Perform(context.Background(), schemas.Action{Type: schemas.ActionHotkey})
		assert.False(t, result.Success)
	})

	t.Run("open_app without app", func(t *testing.T) {
		result := exec.Perform(context.Background(), schemas.Action{Type: schemas.ActionOpenApp})
		assert.False(t, result.Success)
	})

	assert.Empty(t, driver.calls)
}

func TestExecutor_DriverFailure(t *testing.T) {
	driver := &fakeDriver{failure: errors.New("xdotool: command not found")}
	exec := newTestExecutor(t, driver)

	result := exec.Perform(context.Background(), schemas.Action{Type: schemas.ActionClick, X: 1, Y: 1})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "xdotool")
}

func TestExecutor_WaitRespectsContext(t *testing.T) {
	exec := newTestExecutor(t, &fakeDriver{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := exec.Perform(ctx, schemas.Action{Type: schemas.ActionWait, Amount: 10})
	assert.False(t, result.Success)
	assert.Less(t, time.Since(start), 2*time.Second, "wait must abort with the context")
}

func TestExecutor_DoneIsNoOp(t *testing.T) {
	driver := &fakeDriver{}
	exec := newTestExecutor(t, driver)

	result := exec.Perform(context.Background(), schemas.Action{Type: schemas.ActionDone})
	assert.True(t, result.Success)
	assert.Empty(t, driver.calls)
}

func TestExecutor_Observe(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48))))

	driver := &fakeDriver{shot: buf.Bytes()}
	exec := newTestExecutor(t, driver)

	shot, err := exec.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 64, shot.Width)
	assert.Equal(t, 48, shot.Height)
	assert.Equal(t, buf.Bytes(), shot.PNG)
}

func TestExecutor_ObserveFailure(t *testing.T) {
	driver := &fakeDriver{failure: errors.New("scrot failed")}
	exec := newTestExecutor(t, driver)

	_, err := exec.Observe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(schemas.ErrCodeScreenCapture))
}

func TestExecutor_Stats(t *testing.T) {
	driver := &fakeDriver{}
	exec := newTestExecutor(t, driver)

	exec.Perform(context.Background(), schemas.Action{Type: schemas.ActionClick, X: 1, Y: 1})
	exec.Perform(context.Background(), schemas.Action{Type: schemas.ActionClick, X: -1, Y: 1})

	total, successful, _ := exec.Stats()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, successful)
}
