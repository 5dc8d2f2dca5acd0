package workflow

import (
	"context"

	"go.uber.org/zap"
)

// Approver is the external approval channel consulted by WAIT_HUMAN steps.
// Approve blocks until a verdict arrives or ctx expires; false means the
// human denied the checkpoint and the step fails.
type Approver interface {
	Approve(ctx context.Context, message string, bindings Bindings) (bool, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, message string, bindings Bindings) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, message string, bindings Bindings) (bool, error) {
	return f(ctx, message, bindings)
}

// AutoApprover approves every checkpoint after logging it loudly. It is the
// degraded mode for unattended runs; attended runs should wire a real
// approval channel instead.
type AutoApprover struct {
	log *zap.Logger
}

// NewAutoApprover creates an approver that never blocks.
func NewAutoApprover(log *zap.Logger) *AutoApprover {
	return &AutoApprover{log: log.Named("approver")}
}

func (a *AutoApprover) Approve(_ context.Context, message string, bindings Bindings) (bool, error) {
	a.log.Warn("human confirmation requested, auto-approving",
		zap.String("message", message),
		zap.Any("bindings", bindings))
	return true, nil
}
