// -- cmd/run.go --
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nelieo/superagent/api/schemas"
	"github.com/nelieo/superagent/internal/observability"
)

var ijson = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	runTimeout  time.Duration
	runPlanned  bool
	runParallel bool
)

var runCmd = &cobra.Command{
	Use:   `run "task" ["task"...]`,
	Short: "Execute one or more natural-language desktop tasks",
	Long: `Executes each task through the vision-guided control loop until the
model declares it done or a budget (iterations, wall clock) runs out.
With --parallel, tasks run concurrently on independent agents that share
the perception backend and the long-term store.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTasks,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-task timeout (default from config)")
	runCmd.Flags().BoolVar(&runPlanned, "planned", true, "use hierarchical planning and reflection")
	runCmd.Flags().BoolVar(&runParallel, "parallel", false, "run tasks concurrently")
}

func runTasks(cmd *cobra.Command, args []string) error {
	log := observability.GetLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPorts(log)
	if err != nil {
		return err
	}

	timeout := runTimeout
	if timeout <= 0 {
		timeout = cfg.Agent.DefaultTimeout
	}

	results := make([]schemas.TaskResult, len(args))
	if runParallel {
		g, gctx := errgroup.WithContext(ctx)
		var mu sync.Mutex
		for i, task := range args {
			g.Go(func() error {
				runner := newRunner(p, runPlanned, log.With(zap.Int("worker", i)))
				res := runner.Run(gctx, task, timeout)
				mu.Lock()
				results[i] = res
				mu.Unlock()
				return nil
			})
		}
		// Runners never return errors, only structured results.
		_ = g.Wait()
	} else {
		for i, task := range args {
			runner := newRunner(p, runPlanned, log)
			results[i] = runner.Run(ctx, task, timeout)
		}
	}

	failed := logResults(log, results)

	out, merr := ijson.MarshalIndent(results, "", "  ")
	if merr == nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(args))
	}
	return nil
}

// logResults reports each task outcome and returns the failure count.
func logResults(log *zap.Logger, results []schemas.TaskResult) int {
	failed := 0
	for _, res := range results {
		if res.Success {
			log.Info("task succeeded",
				zap.String("task", res.Task),
				zap.Int("actions", res.ActionsTaken),
				zap.Duration("duration", res.Duration))
		} else {
			failed++
			log.Error("task failed",
				zap.String("task", res.Task),
				zap.String("error", res.Error))
		}
	}
	return failed
}
