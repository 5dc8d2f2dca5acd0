// api/schemas/actions.go
package schemas

import (
	"fmt"
	"strings"
	"time"
)

// ActionType is an enumeration of every primitive the agent can decide to
// perform on the host. This provides a structured vocabulary for the agent's
// capabilities; values arriving from a perception backend are decoded through
// ParseActionType so an unknown string becomes a typed error, never a panic.
type ActionType string

const (
	// -- Pointer interaction --
	ActionClick       ActionType = "click"
	ActionDoubleClick ActionType = "double_click"
	ActionRightClick  ActionType = "right_click"
	ActionDrag        ActionType = "drag"
	ActionScroll      ActionType = "scroll"

	// -- Keyboard interaction --
	ActionTypeText ActionType = "type" // types free text into the focused element
	ActionHotkey   ActionType = "hotkey"

	// -- Host control --
	ActionOpenApp ActionType = "open_app"
	ActionWait    ActionType = "wait"

	// -- Cognitive / terminal --
	ActionDone    ActionType = "done"    // task complete, ends the control loop
	ActionExplore ActionType = "explore" // agent requests an alternative path
	ActionVerify  ActionType = "verify"  // agent requests outcome verification
)

var actionTypes = map[string]ActionType{
	"click":        ActionClick,
	"double_click": ActionDoubleClick,
	"right_click":  ActionRightClick,
	"drag":         ActionDrag,
	"scroll":       ActionScroll,
	"type":         ActionTypeText,
	"hotkey":       ActionHotkey,
	"open_app":     ActionOpenApp,
	"wait":         ActionWait,
	"done":         ActionDone,
	"explore":      ActionExplore,
	"verify":       ActionVerify,
}

// ParseActionType decodes a raw action type string from a perception backend.
// Matching is case-insensitive because models are inconsistent about casing.
func ParseActionType(raw string) (ActionType, error) {
	t, ok := actionTypes[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", &UnknownActionTypeError{Raw: raw}
	}
	return t, nil
}

// UnknownActionTypeError reports an action type string outside the closed set.
type UnknownActionTypeError struct {
	Raw string
}

func (e *UnknownActionTypeError) Error() string {
	return fmt.Sprintf("unknown action type %q", e.Raw)
}

// Action represents a single, concrete step decided upon by the agent's mind.
// Only the fields relevant to the variant are populated: coordinates for
// pointer actions, Text for typing, Keys for hotkeys, Amount for scroll/wait,
// App for open_app. Actions are immutable once constructed.
type Action struct {
	ID   string     `json:"id"`
	Type ActionType `json:"type"`

	X      int      `json:"x,omitempty"`
	Y      int      `json:"y,omitempty"`
	Text   string   `json:"text,omitempty"`
	Keys   []string `json:"keys,omitempty"`
	Amount int      `json:"amount,omitempty"`
	App    string   `json:"app,omitempty"`

	// Target is the high-level description of the element being interacted
	// with; Reason is the model's one-line justification. Both are free text
	// kept for logging and for the memory context window.
	Target          string  `json:"target,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	Confidence      float64 `json:"confidence"`
	ExpectedOutcome string  `json:"expected_outcome,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// String renders a compact human-readable form for logs.
func (a Action) String() string {
	switch a.Type {
	case ActionClick, ActionDoubleClick, ActionRightClick, ActionDrag:
		return fmt.Sprintf("%s at (%d, %d) - %s", a.Type, a.X, a.Y, a.Reason)
	case ActionTypeText:
		text := a.Text
		if len(text) > 50 {
			text = text[:50] + "..."
		}
		return fmt.Sprintf("type %q - %s", text, a.Reason)
	case ActionHotkey:
		return fmt.Sprintf("press %s - %s", strings.Join(a.Keys, "+"), a.Reason)
	case ActionScroll:
		return fmt.Sprintf("scroll %d - %s", a.Amount, a.Reason)
	case ActionWait:
		return fmt.Sprintf("wait %ds - %s", a.Amount, a.Reason)
	case ActionOpenApp:
		return fmt.Sprintf("open_app %s - %s", a.App, a.Reason)
	default:
		return fmt.Sprintf("%s - %s", a.Type, a.Reason)
	}
}

// ActionResult is the outcome of dispatching one Action through the Action
// Port. It is created immediately after the dispatch returns and never
// mutated afterward.
type ActionResult struct {
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	// Optional screen references captured around the dispatch, used by
	// visual verification. Nil when verification is disabled.
	Before *Screenshot `json:"-"`
	After  *Screenshot `json:"-"`
}

// Screenshot is one captured frame of the host display.
type Screenshot struct {
	PNG    []byte
	Width  int
	Height int
}

// TaskResult is the structured outcome of one control-loop execution. The
// loop never surfaces a raw fault to its caller; every exit path produces
// one of these.
type TaskResult struct {
	Success      bool          `json:"success"`
	Task         string        `json:"task"`
	ActionsTaken int           `json:"actions_taken"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
	FinalState   string        `json:"final_state,omitempty"`
}
