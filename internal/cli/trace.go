package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/depman-io/depman/internal/trace"
)

// TraceResult is the JSON payload of the trace command.
type TraceResult struct {
	Runs   []string      `json:"runs,omitempty"`
	Events []EventOutput `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		run    string
		kind   string
		object string
	)

	cmd := &cobra.Command{
		Use:   "trace <trace.db>",
		Short: "Inspect a recorded trace database",
		Long: `List the events recorded to a trace database by run --trace-db,
optionally narrowed by run name, event kind, or object ID.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(rootOpts, args[0], trace.Filter{
				Run:    run,
				Kind:   trace.Kind(kind),
				Object: object,
			}, cmd)
		},
	}

	cmd.Flags().StringVar(&run, "run", "", "only events of this run")
	cmd.Flags().StringVar(&kind, "kind", "", "only events of this kind")
	cmd.Flags().StringVar(&object, "object", "", "only events for this object")

	return cmd
}

func runTrace(opts *RootOptions, path string, filter trace.Filter, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if filter.Kind != "" && !filter.Kind.Valid() {
		err := fmt.Errorf("unknown event kind %q", filter.Kind)
		_ = formatter.Failure(err.Error(), nil)
		return WrapExitError(ExitCommandError, "trace", err)
	}

	store, err := trace.Open(path)
	if err != nil {
		_ = formatter.Failure(err.Error(), nil)
		return WrapExitError(ExitCommandError, "open trace database", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	runs, err := store.Runs(ctx)
	if err != nil {
		_ = formatter.Failure(err.Error(), nil)
		return WrapExitError(ExitCommandError, "list runs", err)
	}

	events, err := store.ReadEvents(ctx, filter)
	if err != nil {
		_ = formatter.Failure(err.Error(), nil)
		return WrapExitError(ExitCommandError, "read events", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(TraceResult{Runs: runs, Events: toEventOutputs(events)})
	}

	fmt.Fprintf(formatter.Writer, "runs: %d, events: %d\n", len(runs), len(events))
	printEvents(formatter, events)
	return nil
}
