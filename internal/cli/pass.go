package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/deadbolt/internal/anchor"
	"github.com/roach88/deadbolt/internal/pipeline"
	"github.com/roach88/deadbolt/internal/presence"
)

// PassOptions holds flags for the pass command.
type PassOptions struct {
	*RootOptions
	commonOptions
	Outbox string
}

// NewPassCommand creates the pass command.
func NewPassCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PassOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pass <content-dir>",
		Short: "Run one gated seal pass",
		Long: `Run one gated seal pass over a content directory.

The pass requires fresh operator presence, computes the delta against the
last committed seal, journals the delta content, submits the seal artifact
for anchoring, and commits the new seal state only once both anchors
validate and the policy approves. A health record is appended whatever
the outcome.

Example:
  deadbolt pass --db ./deadbolt.db --evidence . ./content`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(opts, args[0], cmd)
		},
	}

	opts.commonOptions.register(cmd.Flags())
	cmd.Flags().StringVar(&opts.Outbox, "outbox", "out/outbox", "outbox directory for anchor submissions, relative to the evidence root")

	return cmd
}

func runPass(opts *PassOptions, contentDir string, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, opts.commonOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	outbox := &anchor.OutboxSubmitter{Dir: filepath.Join(opts.Evidence, filepath.FromSlash(opts.Outbox))}
	p, err := pipeline.New(pipeline.Config{
		Store:           e.store,
		Gate:            presence.NewGate(e.evidence, nil, e.logger),
		Verifier:        anchor.NewVerifier(e.evidence, e.logger),
		TransparencyLog: outbox,
		PinService:      outbox,
		Source:          &pipeline.DirSource{Root: contentDir},
		Reporter:        pipeline.NewReporter(e.store, e.nodeID, nil, e.logger),
		Logger:          e.logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build pipeline", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	res, runErr := p.Run(cmd.Context(), *e.policy)
	if runErr != nil {
		var pe *pipeline.PassError
		if errors.As(runErr, &pe) {
			if err := out.Failure("PASS_FAILED",
				fmt.Sprintf("pass failed in %s", pe.State), pe.Reasons); err != nil {
				return err
			}
			return WrapExitError(ExitFailure, "pass failed", runErr)
		}
		return WrapExitError(ExitCommandError, "pass aborted", runErr)
	}

	return out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "%s sealed generation %d\n", okLabel(), res.Generation)
		fmt.Fprintf(w, "  seal:     %s\n", res.SealID)
		fmt.Fprintf(w, "  digest:   %s\n", res.SealDigest)
		fmt.Fprintf(w, "  delta:    %d path(s)\n", len(res.Delta))
		if opts.Verbose && len(res.Delta) > 0 {
			fmt.Fprintf(w, "            %s\n", strings.Join(res.Delta, ", "))
		}
		fmt.Fprintf(w, "  coverage: %.4f gaps: %d\n", res.Coverage, res.Gaps)
	})
}
