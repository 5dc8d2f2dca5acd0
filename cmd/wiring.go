// -- cmd/wiring.go --
package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nelieo/superagent/api/schemas"
	"github.com/nelieo/superagent/internal/agent"
	"github.com/nelieo/superagent/internal/executor"
	"github.com/nelieo/superagent/internal/perception"
	"github.com/nelieo/superagent/internal/store"
)

// ports bundles the shared infrastructure one process instantiates once:
// the vision backend, the X11 executor and the long-term store. Task
// runners are created per task on top of these.
type ports struct {
	perception schemas.PerceptionPort
	actions    schemas.ActionPort
	store      *store.Store
}

func buildPorts(log *zap.Logger) (*ports, error) {
	pport, err := perception.New(cfg.Perception, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create perception port: %w", err)
	}

	driver := executor.NewX11Driver(cfg.Executor, log)
	exec := executor.New(driver, cfg.Executor, log)

	st, err := store.New(cfg.Store.Path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open long-term store: %w", err)
	}

	return &ports{perception: pport, actions: exec, store: st}, nil
}

// newRunner creates a fresh task runner with its own short-term memory.
// Planned mode layers strategic/tactical planning and reflection on top of
// the basic observe-decide-act loop.
func newRunner(p *ports, planned bool, log *zap.Logger) schemas.TaskRunner {
	if planned {
		return agent.NewPlanned(p.perception, p.actions, p.store, cfg.Agent, log)
	}
	return agent.New(p.perception, p.actions, p.store, cfg.Agent, log)
}
