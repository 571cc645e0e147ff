package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/deadbolt/internal/anchor"
	"github.com/roach88/deadbolt/internal/quorum"
	"github.com/roach88/deadbolt/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	commonOptions
}

// verifyReport is the JSON payload for the verify command.
type verifyReport struct {
	SealID     string              `json:"seal_id"`
	SealDigest string              `json:"seal_digest"`
	Generation int64               `json:"generation"`
	AnchorsOK  bool                `json:"anchors_ok"`
	Anchors    []string            `json:"anchor_reasons,omitempty"`
	Quorum     map[string]bool     `json:"quorum_ok"`
	Reasons    map[string][]string `json:"quorum_reasons,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-verify anchors and quorum for the latest seal, read-only",
		Long: `Re-run anchor and quorum verification against the latest committed seal.

Verification is strictly read-only: no proofs are created, no episodes are
consumed. Quorum is checked for every action declared in critical_actions.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	opts.commonOptions.register(cmd.Flags())
	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
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
	if state.Empty() {
		return out.Failure("NO_SEAL", "nothing to verify", []string{"no committed seal"})
	}

	report := verifyReport{
		SealID:     state.SealID,
		SealDigest: state.Digest,
		Generation: state.Generation,
		Quorum:     map[string]bool{},
		Reasons:    map[string][]string{},
	}

	report.AnchorsOK, report.Anchors = anchor.NewVerifier(e.evidence, e.logger).AnchorsOK(ctx, state.Digest)

	registry, err := quorum.LoadRegistry(e.evidence)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load key registry", err)
	}
	qv := quorum.NewVerifier(e.evidence, registry, nil, e.logger)
	allQuorum := true
	for _, actionID := range e.policy.CriticalActions {
		ok, reasons := qv.QuorumOK(actionID, state.Digest, e.policy.Quorum.RequiredN)
		report.Quorum[actionID] = ok
		if !ok {
			allQuorum = false
			report.Reasons[actionID] = reasons
		}
	}

	if !report.AnchorsOK || !allQuorum {
		var reasons []string
		reasons = append(reasons, report.Anchors...)
		for action, rs := range report.Reasons {
			for _, r := range rs {
				reasons = append(reasons, fmt.Sprintf("%s: %s", action, r))
			}
		}
		if err := out.Failure("VERIFY_FAILED", "verification failed", reasons); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "verification failed", nil)
	}

	return out.Success(report, func(w io.Writer) {
		fmt.Fprintf(w, "%s generation %d verified\n", okLabel(), report.Generation)
		fmt.Fprintf(w, "  digest:  %s\n", report.SealDigest)
		fmt.Fprintf(w, "  anchors: valid\n")
		for _, actionID := range e.policy.CriticalActions {
			fmt.Fprintf(w, "  quorum:  %s met\n", actionID)
		}
	})
}
