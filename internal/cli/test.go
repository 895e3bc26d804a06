package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run every scenario in a directory",
		Long: `Run every scenario file in a directory and check its assertions.

A scenario with a golden file (golden/<name>.golden next to the scenario)
must also reproduce that trace byte for byte. --update rewrites the golden
files from the current traces.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  lattice test ./scenarios
  lattice test ./scenarios --filter "hire*"
  lattice test ./scenarios --update
  lattice test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	files, err := harness.FindScenarios(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	suite, err := harness.RunSuite(ctx, files,
		harness.WithSessionTimeout(opts.Config.SessionTimeout),
		harness.WithMaxSchemaDepth(opts.Config.MaxSchemaDepth),
		harness.WithDefaultCategory(opts.Config.ValidationCategory),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "test run interrupted", err)
	}

	for i := range suite.Scenarios {
		sr := &suite.Scenarios[i]
		var note string
		if sr.Result != nil {
			if note, err = checkGolden(sr, opts.Update); err != nil {
				sr.Errors = append(sr.Errors, err.Error())
				if sr.Pass {
					sr.Pass = false
					suite.Passed--
					suite.Failed++
				}
			}
		}
		if !formatter.JSON() {
			printScenario(formatter, *sr, note)
		}
	}

	failed := NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	if formatter.JSON() {
		if suite.Failed > 0 {
			if err := formatter.Failure("E_TEST_FAILED", failed.Message, suite); err != nil {
				return err
			}
			return failed
		}
		return formatter.Success(suite)
	}

	w := formatter.Writer
	if suite.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.Total)
	if suite.Failed > 0 {
		return failed
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

func printScenario(formatter *OutputFormatter, sr harness.ScenarioResult, note string) {
	w := formatter.Writer
	if sr.Pass {
		fmt.Fprintf(w, "✓ %s%s\n", sr.Name, note)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// checkGolden compares a scenario's trace with its golden file, or writes
// the file when update is set. Scenarios without a golden file are checked
// by their assertions only.
func checkGolden(sr *harness.ScenarioResult, update bool) (string, error) {
	path := goldenFilePath(sr.Path)
	current, err := harness.Snapshot(sr.Name, sr.Result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal trace: %w", err)
	}

	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, current, 0o644); err != nil {
			return "", fmt.Errorf("failed to write golden file: %w", err)
		}
		return " (golden updated)", nil
	}

	golden, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(golden, current) {
		return "", fmt.Errorf("trace does not match golden file %s (run with --update to regenerate)", path)
	}
	return " (golden)", nil
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}
