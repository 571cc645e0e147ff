package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/deadbolt/internal/anchor"
	"github.com/roach88/deadbolt/internal/dispatch"
	"github.com/roach88/deadbolt/internal/policy"
	"github.com/roach88/deadbolt/internal/presence"
	"github.com/roach88/deadbolt/internal/quorum"
	"github.com/roach88/deadbolt/internal/store"
)

// DispatchOptions holds flags for the dispatch command.
type DispatchOptions struct {
	*RootOptions
	commonOptions
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch <action-id>",
		Short: "Fire a critical action, at most once per episode",
		Long: `Fire a critical action against the latest committed seal.

All gates are re-checked live: operator presence, anchor validity, and a
quorum of distinct validated signers for this specific action. The trigger
episode (action id + seal digest) is consumed atomically with the receipt;
a second dispatch for the same episode is rejected.

Example:
  deadbolt dispatch publish-keys --db ./deadbolt.db --evidence .`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(opts, args[0], cmd)
		},
	}

	opts.commonOptions.register(cmd.Flags())
	return cmd
}

func runDispatch(opts *DispatchOptions, actionID string, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, opts.commonOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	ctx := cmd.Context()

	if !e.policy.IsCritical(actionID) {
		return WrapExitError(ExitCommandError,
			fmt.Sprintf("action %q is not declared in critical_actions", actionID), nil)
	}

	ev, err := gatherEvidence(ctx, e, actionID)
	if err != nil {
		return err
	}

	d := dispatch.New(e.store, nil, nil, e.logger)
	receipt, err := d.Dispatch(ctx, actionID, ev)
	if err != nil {
		var de *dispatch.DenyError
		switch {
		case errors.As(err, &de):
			if outErr := out.Failure("DISPATCH_DENIED", "dispatch denied", de.Reasons); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, "dispatch denied", err)
		case errors.Is(err, dispatch.ErrAlreadyFired):
			if outErr := out.Failure("ALREADY_FIRED", "episode already consumed",
				[]string{"an action receipt already exists for this seal episode"}); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, "already fired", err)
		default:
			return WrapExitError(ExitCommandError, "dispatch failed", err)
		}
	}

	return out.Success(receipt, func(w io.Writer) {
		fmt.Fprintf(w, "%s action fired\n", okLabel())
		fmt.Fprintf(w, "  receipt: %s\n", receipt.ReceiptID)
		fmt.Fprintf(w, "  action:  %s\n", receipt.ActionID)
		fmt.Fprintf(w, "  episode: %s\n", receipt.EpisodeKey)
		fmt.Fprintf(w, "  seal:    %s\n", receipt.SealID)
	})
}

// gatherEvidence re-checks every gate against the latest committed seal and
// assembles the dispatch evidence. Every failed gate contributes a reason;
// the dispatcher's precondition check reports them all.
func gatherEvidence(ctx context.Context, e *env, actionID string) (dispatch.Evidence, error) {
	state, err := e.store.LoadSealState(ctx)
	if err != nil {
		if store.IsCorruption(err) {
			return dispatch.Evidence{}, WrapExitError(ExitCommandError, "seal state corrupt, operator intervention required", err)
		}
		return dispatch.Evidence{}, WrapExitError(ExitCommandError, "failed to load seal state", err)
	}

	var reasons []string

	presenceOK := true
	gate := presence.NewGate(e.evidence, nil, e.logger)
	if err := gate.Require(*e.policy); err != nil {
		if !presence.IsPresenceError(err) {
			return dispatch.Evidence{}, WrapExitError(ExitCommandError, "presence check failed", err)
		}
		presenceOK = false
		reasons = append(reasons, err.Error())
	}

	anchorsOK := false
	if state.Empty() {
		reasons = append(reasons, "no committed seal")
	} else {
		var anchorReasons []string
		anchorsOK, anchorReasons = anchor.NewVerifier(e.evidence, e.logger).AnchorsOK(ctx, state.Digest)
		reasons = append(reasons, anchorReasons...)
	}

	quorumOK := false
	registry, err := quorum.LoadRegistry(e.evidence)
	if err != nil {
		reasons = append(reasons, err.Error())
	} else if !state.Empty() {
		var quorumReasons []string
		quorumOK, quorumReasons = quorum.NewVerifier(e.evidence, registry, nil, e.logger).
			QuorumOK(actionID, state.Digest, e.policy.Quorum.RequiredN)
		reasons = append(reasons, quorumReasons...)
	}

	decision := policy.Evaluate(*e.policy, policy.Signals{
		Coverage:   1, // dispatch gates on the committed seal; coverage was enforced at seal time
		Gaps:       0,
		AnchorsOK:  anchorsOK,
		QuorumOK:   quorumOK,
		PresenceOK: presenceOK,
	})

	return dispatch.Evidence{
		SealID:     state.SealID,
		SealDigest: state.Digest,
		Generation: state.Generation,
		Decision:   decision,
		AnchorsOK:  anchorsOK,
		QuorumOK:   quorumOK,
		Reasons:    reasons,
	}, nil
}
