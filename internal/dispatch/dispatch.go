// Package dispatch fires a designated irreversible action exactly once per
// satisfied trigger episode.
//
// An episode is (action id, sealed manifest digest): a fresh seal opens a
// fresh episode. Consuming the episode and emitting the action receipt
// happen in one atomic compare-and-set, so of N concurrent dispatchers for
// the same episode exactly one fires and the rest get ErrAlreadyFired.
// The fire decision is never retried after a success: one discrete
// emission per satisfied-condition episode, not per process invocation.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/deadbolt/internal/policy"
	"github.com/roach88/deadbolt/internal/store"
)

// ErrAlreadyFired rejects re-invocation on a consumed episode. A rejection,
// not a pipeline health failure.
var ErrAlreadyFired = errors.New("episode already consumed")

// DenyError reports a dispatch whose preconditions did not hold, with the
// complete reason list.
type DenyError struct {
	Reasons []string
}

func (e *DenyError) Error() string {
	return "dispatch denied: " + strings.Join(e.Reasons, "; ")
}

// IsDenied reports whether err is (or wraps) a DenyError.
func IsDenied(err error) bool {
	var de *DenyError
	return errors.As(err, &de)
}

// Evidence is the verified state a dispatch fires against. Assembled by the
// caller from the latest pass and the per-action quorum check.
type Evidence struct {
	SealID     string          `json:"seal_id"`
	SealDigest string          `json:"seal_digest"`
	Generation int64           `json:"generation"`
	Decision   policy.Decision `json:"decision"`
	AnchorsOK  bool            `json:"anchors_ok"`
	QuorumOK   bool            `json:"quorum_ok"`
	Reasons    []string        `json:"reasons,omitempty"`
}

// Assembler builds the opaque action payload from named components and
// returns a reference recorded on the receipt. The payload semantics are
// outside this core; assembly must be repeatable since a losing concurrent
// dispatch discards its assembled payload.
type Assembler interface {
	Assemble(ctx context.Context, actionID string, ev Evidence) (payloadRef string, err error)
}

// AssemblerFunc adapts a function to the Assembler interface.
type AssemblerFunc func(ctx context.Context, actionID string, ev Evidence) (string, error)

func (f AssemblerFunc) Assemble(ctx context.Context, actionID string, ev Evidence) (string, error) {
	return f(ctx, actionID, ev)
}

// Dispatcher is the one-shot executor for critical actions.
type Dispatcher struct {
	store     *store.Store
	assembler Assembler
	logger    *zap.Logger
	now       func() time.Time
}

// New builds a Dispatcher. assembler may be nil, in which case receipts
// reference only the sealed evidence; now and logger may be nil.
func New(s *store.Store, assembler Assembler, now func() time.Time, logger *zap.Logger) *Dispatcher {
	if assembler == nil {
		assembler = AssemblerFunc(func(context.Context, string, Evidence) (string, error) {
			return "", nil
		})
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: s, assembler: assembler, now: now, logger: logger}
}

// EpisodeKey names the trigger episode for an action against a seal.
func EpisodeKey(actionID, sealDigest string) string {
	return actionID + "@" + sealDigest
}

// Dispatch fires actionID once for the episode named by the evidence.
//
// Preconditions, all required: the policy decision is Promote, anchors
// validated, and quorum is met for this specific action. A precondition
// failure returns DenyError with every failing reason. When preconditions
// hold, the episode is consumed atomically with the receipt emission;
// a consumed episode returns ErrAlreadyFired.
func (d *Dispatcher) Dispatch(ctx context.Context, actionID string, ev Evidence) (store.Receipt, error) {
	var reasons []string
	if !ev.Decision.Promote {
		r := ev.Decision.Reasons
		if len(r) == 0 {
			r = []string{"policy denied"}
		}
		reasons = append(reasons, r...)
	}
	if !ev.AnchorsOK {
		reasons = append(reasons, "anchors not verified")
	}
	if !ev.QuorumOK {
		reasons = append(reasons, "quorum not met for "+actionID)
	}
	if ev.SealDigest == "" {
		reasons = append(reasons, "no sealed evidence")
	}
	if len(reasons) > 0 {
		d.logger.Info("dispatch denied",
			zap.String("action_id", actionID),
			zap.Strings("reasons", reasons))
		return store.Receipt{}, &DenyError{Reasons: dedupe(reasons)}
	}

	payloadRef, err := d.assembler.Assemble(ctx, actionID, ev)
	if err != nil {
		return store.Receipt{}, fmt.Errorf("assemble payload for %s: %w", actionID, err)
	}

	evidenceJSON, err := json.Marshal(struct {
		Evidence
		PayloadRef string `json:"payload_ref,omitempty"`
	}{Evidence: ev, PayloadRef: payloadRef})
	if err != nil {
		return store.Receipt{}, fmt.Errorf("encode evidence for %s: %w", actionID, err)
	}

	receipt := store.Receipt{
		ReceiptID:  uuid.NewString(),
		ActionID:   actionID,
		EpisodeKey: EpisodeKey(actionID, ev.SealDigest),
		SealID:     ev.SealID,
		Evidence:   string(evidenceJSON),
		FiredAt:    d.now().UTC(),
	}

	won, err := d.store.ConsumeEpisode(ctx, receipt.EpisodeKey, receipt)
	if err != nil {
		return store.Receipt{}, fmt.Errorf("dispatch %s: %w", actionID, err)
	}
	if !won {
		d.logger.Info("dispatch rejected, episode consumed",
			zap.String("action_id", actionID),
			zap.String("episode_key", receipt.EpisodeKey))
		return store.Receipt{}, fmt.Errorf("dispatch %s: %w", actionID, ErrAlreadyFired)
	}

	d.logger.Info("action fired",
		zap.String("action_id", actionID),
		zap.String("receipt_id", receipt.ReceiptID),
		zap.String("episode_key", receipt.EpisodeKey))
	return receipt, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
