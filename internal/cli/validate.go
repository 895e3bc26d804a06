package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Domain string                     `json:"domain,omitempty"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <model-dir>",
		Short: "Validate a model without installing it",
		Long: `Validate a CUE domain model.

Checks names, property types, extends chains (including cycles), relationship
endpoints and constraint declarations, and reports every problem found.

Exit codes:
  0 - Model is valid
  1 - Model has validation errors
  2 - Command error (directory not found, CUE does not load, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, modelDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loaded, err := compiler.LoadModel(modelDir)
	if err != nil {
		return loadFailure(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, modelDir)
	formatter.VerboseLog("Validating domain: %s", loaded.Model.Domain)

	if errs := compiler.Validate(loaded.Model); len(errs) > 0 {
		return outputValidationErrors(formatter, loaded.Model.Domain, errs)
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Domain: loaded.Model.Domain})
	}
	fmt.Fprintf(formatter.Writer, "✓ Model %s valid\n", loaded.Model.Domain)
	return nil
}

// outputValidationErrors outputs every validation error. Validation
// failures exit with code 1.
func outputValidationErrors(formatter *OutputFormatter, domain string, errs []compiler.ValidationError) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		result := ValidationResult{Valid: false, Domain: domain, Errors: errs}
		if err := formatter.Failure(errs[0].Code, errs[0].Message, result); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return exitErr
}
