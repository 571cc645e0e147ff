package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/deadbolt/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	commonOptions
	HealthLimit int
}

// statusReport is the JSON payload for the status command.
type statusReport struct {
	Generation   int64                `json:"generation"`
	SealID       string               `json:"seal_id,omitempty"`
	SealDigest   string               `json:"seal_digest,omitempty"`
	CommittedAt  *time.Time           `json:"committed_at,omitempty"`
	PathCount    int                  `json:"path_count"`
	JournalCount int64                `json:"journal_count"`
	Health       []store.HealthRecord `json:"health,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show seal generation, journal size, and recent health",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	opts.commonOptions.register(cmd.Flags())
	cmd.Flags().IntVar(&opts.HealthLimit, "health", 5, "number of recent health records to show")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, opts.commonOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	state, err := e.store.LoadSealState(ctx)
	if err != nil {
		if store.IsCorruption(err) {
			return WrapExitError(ExitCommandError, "seal state corrupt, operator intervention required", err)
		}
		return WrapExitError(ExitCommandError, "failed to load seal state", err)
	}

	journalCount, err := e.store.JournalCount(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count journal", err)
	}

	health, err := e.store.RecentHealth(ctx, opts.HealthLimit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read health", err)
	}

	report := statusReport{
		Generation:   state.Generation,
		SealID:       state.SealID,
		SealDigest:   state.Digest,
		PathCount:    len(state.Manifest),
		JournalCount: journalCount,
		Health:       health,
	}
	if !state.Empty() {
		t := state.CommittedAt
		report.CommittedAt = &t
	}

	return out.Success(report, func(w io.Writer) {
		if state.Empty() {
			fmt.Fprintf(w, "no seal committed yet\n")
		} else {
			fmt.Fprintf(w, "generation %d, sealed %s\n", state.Generation, state.CommittedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "  seal:   %s\n", state.SealID)
			fmt.Fprintf(w, "  digest: %s\n", state.Digest)
			fmt.Fprintf(w, "  paths:  %d\n", len(state.Manifest))
		}
		fmt.Fprintf(w, "journal: %d record(s)\n", journalCount)
		for _, h := range health {
			fmt.Fprintf(w, "  %s coverage=%.4f gaps=%d backlog=%d promoted=%t\n",
				h.Timestamp.Format(time.RFC3339), h.Coverage, h.Gaps, h.Backlog, h.Promoted)
		}
	})
}
