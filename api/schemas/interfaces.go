// api/schemas/interfaces.go
package schemas

import (
	"context"
	"encoding/json"
	"time"
)

// PerceptionPort is the narrow interface to a vision/LLM backend. It is
// treated as an opaque, possibly failing, network-bound function: every
// method blocks until the provider responds or ctx expires. Implementations
// retry transient failures internally with exponential backoff and degrade
// to a safe fallback Decision rather than propagating transport errors into
// the control loop.
type PerceptionPort interface {
	// Decide analyzes the screenshot against the task and returns the next
	// action. A nil Decision or an error means the iteration cannot proceed.
	Decide(ctx context.Context, shot *Screenshot, task string, bundle ContextBundle) (*Decision, error)

	// Analyze performs a single structured read and returns the raw JSON
	// object the model produced. Planning and reflection decode their own
	// payloads from it.
	Analyze(ctx context.Context, shot *Screenshot, prompt string, mode PerceptionMode) (json.RawMessage, error)

	// Extract performs a single-shot free-text read against the screenshot,
	// returning the raw extracted value with no surrounding explanation.
	Extract(ctx context.Context, shot *Screenshot, prompt string) (string, error)

	// Stats reports aggregate call statistics.
	Stats() PerceptionStats
}

// ActionPort performs primitive actions on the host and observes its screen.
// Coordinate-bearing actions are range-checked against the known screen
// bounds before dispatch; out-of-bounds coordinates fail locally and are
// never forwarded to the underlying input mechanism.
type ActionPort interface {
	Perform(ctx context.Context, action Action) ActionResult
	Observe(ctx context.Context) (*Screenshot, error)
}

// TaskRunner executes one natural-language task to completion. The control
// loop implements this; the workflow engine consumes it for TASK steps.
type TaskRunner interface {
	Run(ctx context.Context, task string, timeout time.Duration) TaskResult
}
