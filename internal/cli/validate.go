package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/depman-io/depman/internal/harness"
)

// ValidationResult holds validation results for one or more files.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError names the file that failed and why.
type ValidationError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario YAML files against the scenario schema and the
per-operation field rules, without executing them. Faster feedback than
run for scenario development.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var validationErrors []ValidationError
	for _, path := range paths {
		formatter.VerboseLog("Validating %s", path)
		if _, err := harness.LoadScenario(path); err != nil {
			validationErrors = append(validationErrors, ValidationError{File: path, Message: err.Error()})
		}
	}

	if len(validationErrors) > 0 {
		if formatter.Format == "json" {
			_ = formatter.Failure("validation failed", ValidationResult{Valid: false, Errors: validationErrors})
		} else {
			fmt.Fprintln(formatter.Writer, "✗ Validation failed")
			for _, ve := range validationErrors {
				fmt.Fprintf(formatter.Writer, "  %s: %s\n", ve.File, ve.Message)
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(validationErrors)))
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintln(formatter.Writer, "✓ All scenarios valid")
	return nil
}
