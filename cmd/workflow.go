// -- cmd/workflow.go --
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nelieo/superagent/internal/observability"
	"github.com/nelieo/superagent/internal/workflow"
)

var (
	workflowPlanned     bool
	workflowAutoApprove bool
)

var workflowCmd = &cobra.Command{
	Use:   "workflow <file.yaml>",
	Short: "Execute a multi-step workflow definition",
	Long: `Loads a YAML workflow definition and runs it: TASK steps go through
the control loop, EXTRACT steps read values off the screen into the
bindings table, and WAIT_HUMAN steps ask for confirmation on the
terminal (or are auto-approved with --yes).`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.Flags().BoolVar(&workflowPlanned, "planned", true, "use hierarchical planning for task steps")
	workflowCmd.Flags().BoolVar(&workflowAutoApprove, "yes", false, "auto-approve human checkpoints")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	log := observability.GetLogger()

	def, err := workflow.Load(args[0])
	if err != nil {
		return err
	}
	log.Info("loaded workflow",
		zap.String("name", def.Name),
		zap.Int("steps", len(def.Steps)))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPorts(log)
	if err != nil {
		return err
	}
	runner := newRunner(p, workflowPlanned, log)

	var approver workflow.Approver
	if workflowAutoApprove || cfg.Workflow.AutoApprove {
		approver = workflow.NewAutoApprover(log)
	} else {
		approver = &consoleApprover{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout()}
	}

	eng := workflow.NewEngine(runner, p.perception, p.actions, approver, cfg.Workflow, log)
	res := eng.Execute(ctx, def.Steps)

	out, merr := ijson.MarshalIndent(res, "", "  ")
	if merr == nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}

	if !res.Success {
		name := def.Name
		if name == "" {
			name = args[0]
		}
		return fmt.Errorf("workflow %s failed: %s", name, res.Error)
	}
	return nil
}

// consoleApprover asks for checkpoint confirmation on the terminal.
type consoleApprover struct {
	in  *bufio.Reader
	out io.Writer
}

func (c *consoleApprover) Approve(_ context.Context, message string, bindings workflow.Bindings) (bool, error) {
	fmt.Fprintf(c.out, "\n=== HUMAN CONFIRMATION REQUIRED ===\n%s\n", message)
	if len(bindings) > 0 {
		fmt.Fprintf(c.out, "bindings: %v\n", bindings)
	}
	fmt.Fprint(c.out, "continue? [y/N]: ")

	line, err := c.in.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
