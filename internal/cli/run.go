package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/depman-io/depman/internal/harness"
	"github.com/depman-io/depman/internal/trace"
)

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Scenario string        `json:"scenario"`
	Passed   bool          `json:"passed"`
	Events   []EventOutput `json:"events"`
	Errors   []string      `json:"errors,omitempty"`
}

// EventOutput is one trace event in command output.
type EventOutput struct {
	Seq    int64  `json:"seq"`
	Kind   string `json:"kind"`
	Object string `json:"object,omitempty"`
	Owner  string `json:"owner,omitempty"`
	Task   string `json:"task,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var traceDB string

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Replay a scenario against a fresh dependency manager",
		Long: `Replay a scenario file against a fresh dependency manager and print
the trace of pulls, cancellations, reconstruction listens, and task
ready/waiting transitions it produces.

With --trace-db the trace is also recorded to a SQLite database for
later inspection with the trace command.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(rootOpts, args[0], traceDB, cmd)
		},
	}

	cmd.Flags().StringVar(&traceDB, "trace-db", "", "record the trace to this SQLite database")

	return cmd
}

func runRun(opts *RootOptions, path, traceDB string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Failure(err.Error(), nil)
		return WrapExitError(ExitCommandError, "load scenario", err)
	}
	formatter.VerboseLog("Loaded scenario %q with %d step(s)", scenario.Name, len(scenario.Steps))

	result, err := harness.Run(scenario)
	if err != nil {
		_ = formatter.Failure(err.Error(), nil)
		return WrapExitError(ExitCommandError, "run scenario", err)
	}

	if traceDB != "" {
		if err := recordTrace(cmd.Context(), traceDB, scenario.Name, result.Trace); err != nil {
			_ = formatter.Failure(err.Error(), nil)
			return WrapExitError(ExitCommandError, "record trace", err)
		}
		formatter.VerboseLog("Recorded %d event(s) to %s", len(result.Trace), traceDB)
	}

	if err := outputRunResult(formatter, scenario.Name, result); err != nil {
		return err
	}
	if !result.Passed() {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario failed with %d error(s)", len(result.Errors)))
	}
	return nil
}

func recordTrace(ctx context.Context, path, run string, events []trace.Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := trace.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.WriteEvents(ctx, run, events)
}

func outputRunResult(formatter *OutputFormatter, name string, result *harness.Result) error {
	if formatter.Format == "json" {
		return formatter.Success(RunResult{
			Scenario: name,
			Passed:   result.Passed(),
			Events:   toEventOutputs(result.Trace),
			Errors:   result.Errors,
		})
	}

	fmt.Fprintf(formatter.Writer, "scenario: %s\n", name)
	printEvents(formatter, result.Trace)
	if result.Passed() {
		fmt.Fprintln(formatter.Writer, "✓ Scenario passed")
		return nil
	}
	fmt.Fprintln(formatter.Writer, "✗ Scenario failed")
	for _, msg := range result.Errors {
		fmt.Fprintf(formatter.Writer, "  %s\n", msg)
	}
	return nil
}

func toEventOutputs(events []trace.Event) []EventOutput {
	out := make([]EventOutput, len(events))
	for i, e := range events {
		out[i] = EventOutput{
			Seq:    e.Seq,
			Kind:   string(e.Kind),
			Object: e.Object,
			Owner:  e.Owner,
			Task:   e.Task,
		}
	}
	return out
}

func printEvents(formatter *OutputFormatter, events []trace.Event) {
	for _, e := range events {
		line := fmt.Sprintf("%4d  %-13s", e.Seq, e.Kind)
		if e.Object != "" {
			line += " object=" + e.Object
		}
		if e.Owner != "" {
			line += " owner=" + e.Owner
		}
		if e.Task != "" {
			line += " task=" + e.Task
		}
		fmt.Fprintln(formatter.Writer, line)
	}
}
