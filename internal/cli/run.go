package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/harness"
	"github.com/roach88/lattice/internal/journal"
	"github.com/roach88/lattice/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal  string
	Timeout  time.Duration
	Category string
	Metrics  bool
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Scenario string               `json:"scenario"`
	Pass     bool                 `json:"pass"`
	Errors   []string             `json:"errors,omitempty"`
	Trace    []harness.TraceEvent `json:"trace"`
	Metrics  map[string]int64     `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and print its trace",
		Long: `Run one scenario against a fresh store and print the trace: every
committed event, diagnostic and session outcome, in order.

With --journal every session, committed or aborted, is also written to a
SQLite journal that replay and trace can read back.

Example:
  lattice run ./scenarios/hire.yaml
  lattice run ./scenarios/hire.yaml --journal ./hire.db --metrics`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", rootOpts.Config.JournalPath, "write sessions to this SQLite journal")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", rootOpts.Config.SessionTimeout, "cancel sessions open longer than this (0 disables)")
	cmd.Flags().StringVar(&opts.Category, "category", rootOpts.Config.ValidationCategory, "category for validate steps that name none")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "report pipeline counters")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	runOpts := []harness.Option{
		harness.WithSessionTimeout(opts.Timeout),
		harness.WithMaxSchemaDepth(opts.Config.MaxSchemaDepth),
		harness.WithDefaultCategory(opts.Category),
	}
	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
		runOpts = append(runOpts, harness.WithJournal(j))
		formatter.VerboseLog("Journaling sessions to %s", opts.Journal)
	}
	var collector *telemetry.Collector
	if opts.Metrics {
		collector = telemetry.NewCollector()
		defer collector.Shutdown(context.Background())
		runOpts = append(runOpts, harness.WithMetrics(collector.Pipeline))
	}

	slog.Info("running scenario", "scenario", scenario.Name, "steps", len(scenario.Steps))
	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	out := RunResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Errors:   result.Errors,
		Trace:    result.Trace,
	}
	if collector != nil {
		if out.Metrics, err = collector.Totals(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to read metrics", err)
		}
	}

	failed := NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed with %d error(s)", scenario.Name, len(result.Errors)))
	if formatter.JSON() {
		if !result.Pass {
			if err := formatter.Failure("E_SCENARIO_FAILED", failed.Message, out); err != nil {
				return err
			}
			return failed
		}
		return formatter.Success(out)
	}

	w := formatter.Writer
	for _, entry := range out.Trace {
		fmt.Fprintln(w, entry)
	}
	if len(out.Metrics) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Metrics:")
		names := make([]string, 0, len(out.Metrics))
		for name := range out.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %d\n", name, out.Metrics[name])
		}
	}
	fmt.Fprintln(w)
	if !result.Pass {
		fmt.Fprintf(w, "✗ %s\n", scenario.Name)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return failed
	}
	fmt.Fprintf(w, "✓ %s\n", scenario.Name)
	return nil
}

// signalContext derives a context from the command's that is cancelled on
// SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
