package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dataspace/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Actors   int                        `json:"actors"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program>",
		Short: "Validate a rule program without running it",
		Long: `Compile a CUE rule program and check it for semantic errors.

The program may be a single .cue file or a directory loaded as one
instance. Reaction cycles are reported as warnings and do not fail
validation.

Exit codes:
  0 - Program is valid
  1 - Program failed to compile or validate
  2 - Command error (program not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	prog, err := LoadProgram(path)
	if err != nil {
		return formatter.LoadFailure(err)
	}
	formatter.VerboseLog("Compiled %d actor(s) from %s", len(prog.Actors), path)

	result := ValidationResult{
		Actors:   len(prog.Actors),
		Errors:   compiler.Validate(prog),
		Warnings: compiler.AnalyzeCycles(prog),
	}
	result.Valid = len(result.Errors) == 0

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{Code: result.Errors[0].Code, Message: result.Errors[0].Message}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		outputValidationText(formatter, result)
	}

	if !result.Valid {
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}
	return nil
}

func outputValidationText(formatter *OutputFormatter, result ValidationResult) {
	w := formatter.Writer

	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "warning: %s: %s\n", warn.Message, strings.Join(warn.Path, " -> "))
	}

	if result.Valid {
		fmt.Fprintf(w, "✓ Program valid (%d actor(s))\n", result.Actors)
		return
	}

	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, err := range result.Errors {
		fmt.Fprintf(w, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
	}
}
