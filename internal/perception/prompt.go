// File: internal/perception/prompt.go
package perception

import (
	"fmt"
	"strings"

	"github.com/nelieo/superagent/api/schemas"
)

const systemPrompt = `You are an AI controlling a Linux desktop to complete tasks with superhuman speed and accuracy. You respond with JSON only, never markdown.`

// buildPrompt renders the user prompt for one perception call based on the
// bundle's mode. Action mode is the default.
func buildPrompt(task string, bundle schemas.ContextBundle) string {
	switch bundle.Mode {
	case schemas.ModeVerify:
		return buildVerificationPrompt(task, bundle)
	case schemas.ModeExplore:
		return buildExplorationPrompt(task, bundle)
	default:
		return buildActionPrompt(task, bundle)
	}
}

func buildActionPrompt(task string, bundle schemas.ContextBundle) string {
	lastAction := bundle.LastAction
	if lastAction == "" {
		lastAction = "None"
	}

	historyStr := "None"
	if len(bundle.History) > 0 {
		recent := bundle.History
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		var b strings.Builder
		for i, h := range recent {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, h)
		}
		historyStr = strings.TrimRight(b.String(), "\n")
	}

	var goal string
	if bundle.CurrentGoal != "" {
		goal = fmt.Sprintf("CURRENT STEP: %s\n", bundle.CurrentGoal)
	}

	return fmt.Sprintf(`TASK: %s
%s
CURRENT STATE:
- Steps taken: %d
- Last action: %s
- Recent history:
%s

ANALYZE THE SCREENSHOT:
1. What app/window is active?
2. Did last action succeed? (look for visual changes)
3. What's the next optimal step?
4. Where exactly should I interact?

STRICT OUTPUT FORMAT (JSON only, no markdown):
{
  "observation": "one-sentence description of screen",
  "current_app": "app name",
  "last_success": true/false,
  "next_step": "concise plan",
  "confidence": 0.0-1.0,
  "action": {
    "type": "click|double_click|right_click|drag|scroll|type|hotkey|open_app|wait|done",
    "x": <pixel_x>,
    "y": <pixel_y>,
    "text": "text to type",
    "keys": ["ctrl", "t"],
    "amount": <number>,
    "app": "application to open",
    "target": "what element",
    "reason": "why this action",
    "expected_outcome": "what should happen"
  }
}

DECISION RULES:
- If task complete: {"action": {"type": "done"}}
- If stuck (3+ similar actions): {"action": {"type": "explore"}}
- High confidence only: Set confidence based on visual clarity
- Precise coordinates: Measure pixel positions carefully
- Be fast: Choose simplest path to goal

RESPOND NOW:`, task, goal, bundle.TotalSteps, lastAction, historyStr)
}

func buildVerificationPrompt(task string, bundle schemas.ContextBundle) string {
	return fmt.Sprintf(`VERIFICATION MODE

TASK: %s
LAST ACTION: %s
EXPECTED: %s

Analyze the screenshot:
1. Did the action succeed?
2. What changed on screen?
3. Are we closer to the goal?

RESPOND (JSON only):
{
  "success": true/false,
  "observation": "what changed",
  "progress": "closer|same|further from goal",
  "next_recommendation": "what to do next"
}`, task, bundle.LastAction, bundle.ExpectedOutcome)
}

func buildExplorationPrompt(task string, bundle schemas.ContextBundle) string {
	problem := bundle.Instruction
	if problem == "" {
		problem = "Cannot find target"
	}
	return fmt.Sprintf(`EXPLORATION MODE - Agent is stuck

TASK: %s
PROBLEM: %s

Systematically explore the screen:
1. Identify all interactive elements
2. Look for alternative paths to goal
3. Check menus, toolbars, sidebars

RESPOND (JSON only):
{
  "observation": "one-sentence description of screen",
  "alternative_approach": "new strategy",
  "confidence": 0.0-1.0,
  "action": {
    "type": "click|scroll|hotkey",
    "x": <pixel_x>,
    "y": <pixel_y>,
    "keys": ["key"],
    "target": "element to try",
    "reason": "why this might work"
  }
}`, task, problem)
}
