package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/compiler"
)

// Write error code for the compile output file.
const ErrCodeWriteFailed = "E008"

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	Entities      int
	Relationships int
	Properties    int
	Constraints   int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <model-dir>",
		Short: "Compile a CUE model to JSON",
		Long: `Compile a CUE domain model, validate it, and output the compiled
model as JSON.

The JSON form lists entities and relationships with their properties and
every constraint declaration, in declaration order.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, modelDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, err := compiler.LoadModel(modelDir)
	if err != nil {
		return loadFailure(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, modelDir)

	model := loaded.Model
	if errs := compiler.Validate(model); len(errs) > 0 {
		return outputValidationErrors(formatter, model.Domain, errs)
	}

	if opts.Output != "" {
		if err := writeModelToFile(model, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "failed to write output file", err)
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}

	if formatter.JSON() {
		return formatter.Success(model)
	}
	return outputCompileText(formatter, model, opts.Output)
}

// calculateStats computes summary statistics for a model.
func calculateStats(m *compiler.Model) CompilationStats {
	stats := CompilationStats{
		Entities:      len(m.Entities),
		Relationships: len(m.Relationships),
		Constraints:   len(m.Constraints),
	}
	for _, e := range m.Entities {
		stats.Properties += len(e.Properties)
	}
	for _, r := range m.Relationships {
		stats.Properties += len(r.Properties)
	}
	return stats
}

func outputCompileText(formatter *OutputFormatter, m *compiler.Model, outputFile string) error {
	w := formatter.Writer
	stats := calculateStats(m)

	fmt.Fprintf(w, "✓ Compiled %s: %d entity(ies), %d relationship(s), %d constraint(s)\n\n",
		m.Domain, stats.Entities, stats.Relationships, stats.Constraints)

	fmt.Fprintln(w, "Entities:")
	for _, e := range m.Entities {
		fmt.Fprintf(w, "  %s%s: %d property(ies)\n", e.Name, extendsSuffix(e.Extends), len(e.Properties))
	}
	fmt.Fprintln(w)

	if len(m.Relationships) > 0 {
		fmt.Fprintln(w, "Relationships:")
		for _, r := range m.Relationships {
			fmt.Fprintf(w, "  %s%s: %s → %s\n", r.Name, extendsSuffix(r.Extends), r.Start, r.End)
		}
		fmt.Fprintln(w)
	}

	if len(m.Constraints) > 0 {
		fmt.Fprintln(w, "Constraints:")
		for _, c := range m.Constraints {
			fmt.Fprintf(w, "  %s: %s.%s %s\n", c.Name, c.On, c.Property, c.Rule)
		}
		fmt.Fprintln(w)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote compiled model to %s\n", outputFile)
	}
	return nil
}

func extendsSuffix(extends string) string {
	if extends == "" {
		return ""
	}
	return " (extends " + extends + ")"
}

// writeModelToFile writes the compiled model as indented JSON.
func writeModelToFile(m *compiler.Model, filename string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	return os.WriteFile(filename, append(data, '\n'), 0o644)
}
