// Package pipeline orchestrates one gated seal pass.
//
// A pass is a state machine:
//
//	Idle → PresenceChecked → DeltaComputed → Sealed → AnchorSubmitted → Committed
//
// with Failed(state, reasons) terminal from any state. The committed seal
// state is replaced all-or-nothing: a pass that fails anywhere before the
// final commit leaves the previous seal state untouched, and a health
// record is appended whatever the outcome.
//
// Exactly one pass may occupy the Sealed..Committed window at a time; Run
// holds a mutex for the whole pass so two concurrent passes can never diff
// against the same previous state and both commit.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/deadbolt/internal/anchor"
	"github.com/roach88/deadbolt/internal/manifest"
	"github.com/roach88/deadbolt/internal/policy"
	"github.com/roach88/deadbolt/internal/presence"
	"github.com/roach88/deadbolt/internal/store"
)

// submitAttempts bounds retries of external anchor submissions.
const submitAttempts = 3

// PassResult describes one pass, successful or not.
type PassResult struct {
	PassID     string          `json:"pass_id"`
	State      State           `json:"state"`
	SealID     string          `json:"seal_id,omitempty"`
	SealDigest string          `json:"seal_digest,omitempty"`
	Generation int64           `json:"generation,omitempty"`
	Delta      []string        `json:"delta,omitempty"`
	Coverage   float64         `json:"coverage"`
	Gaps       int64           `json:"gaps"`
	Backlog    int64           `json:"backlog"`
	AnchorsOK  bool            `json:"anchors_ok"`
	LogRef     string          `json:"log_ref,omitempty"`
	PinRef     string          `json:"pin_ref,omitempty"`
	Decision   policy.Decision `json:"decision"`
	Committed  bool            `json:"committed"`
}

// Pipeline wires the seal pass collaborators together.
type Pipeline struct {
	mu sync.Mutex

	store    *store.Store
	gate     *presence.Gate
	verifier *anchor.Verifier
	tlog     anchor.TransparencyLog
	pins     anchor.PinService
	source   Source
	reporter *Reporter
	logger   *zap.Logger
	now      func() time.Time
}

// Config collects the pipeline's collaborators. Store, Gate, Verifier,
// TransparencyLog, PinService, Source, and Reporter are required.
type Config struct {
	Store           *store.Store
	Gate            *presence.Gate
	Verifier        *anchor.Verifier
	TransparencyLog anchor.TransparencyLog
	PinService      anchor.PinService
	Source          Source
	Reporter        *Reporter
	Logger          *zap.Logger
	Now             func() time.Time
}

// New builds a Pipeline from its collaborators.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("pipeline: store is required")
	case cfg.Gate == nil:
		return nil, fmt.Errorf("pipeline: presence gate is required")
	case cfg.Verifier == nil:
		return nil, fmt.Errorf("pipeline: anchor verifier is required")
	case cfg.TransparencyLog == nil:
		return nil, fmt.Errorf("pipeline: transparency log is required")
	case cfg.PinService == nil:
		return nil, fmt.Errorf("pipeline: pin service is required")
	case cfg.Source == nil:
		return nil, fmt.Errorf("pipeline: source is required")
	case cfg.Reporter == nil:
		return nil, fmt.Errorf("pipeline: health reporter is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		store:    cfg.Store,
		gate:     cfg.Gate,
		verifier: cfg.Verifier,
		tlog:     cfg.TransparencyLog,
		pins:     cfg.PinService,
		source:   cfg.Source,
		reporter: cfg.Reporter,
		logger:   logger,
		now:      now,
	}, nil
}

// Run executes one gated seal pass under the given policy and returns the
// pass result. Failures carry a *PassError naming the originating state
// and reasons; the result is still populated as far as the pass got, and a
// health record is appended either way.
//
// Presence is evaluated fresh on every call - never cached across passes.
func (p *Pipeline) Run(ctx context.Context, pol policy.Policy) (*PassResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := &PassResult{
		PassID:   uuid.NewString(),
		State:    StateIdle,
		Coverage: 1,
	}
	defer p.reporter.Report(ctx, res)

	log := p.logger.With(zap.String("pass_id", res.PassID))
	log.Info("pass starting")

	// Idle → PresenceChecked
	if err := p.gate.Require(pol); err != nil {
		return res, p.fail(res, StateIdle, err, "presence not established")
	}
	res.State = StatePresenceChecked

	// PresenceChecked → DeltaComputed
	prev, err := p.store.LoadSealState(ctx)
	if err != nil {
		return res, p.fail(res, StatePresenceChecked, err, "seal state unavailable")
	}

	current, _, gaps, err := p.source.Snapshot(ctx)
	if err != nil {
		return res, p.fail(res, StatePresenceChecked, err, "snapshot failed")
	}

	res.Gaps = gaps
	res.Coverage = coverage(int64(len(current)), gaps)
	res.Delta = manifest.Diff(current, prev.Manifest)
	res.Backlog = int64(len(res.Delta))
	res.State = StateDeltaComputed

	log.Info("delta computed",
		zap.Int("delta_paths", len(res.Delta)),
		zap.Int64("gaps", gaps),
		zap.Int64("previous_generation", prev.Generation))

	// DeltaComputed → Sealed: journal every delta path and build the
	// seal artifact from delta content only.
	sealID := uuid.NewString()
	sealDigest, err := current.Digest()
	if err != nil {
		return res, p.fail(res, StateDeltaComputed, err, "manifest digest failed")
	}
	res.SealID = sealID
	res.SealDigest = sealDigest

	artifact, err := p.seal(ctx, sealID, sealDigest, current, res.Delta)
	if err != nil {
		return res, p.fail(res, StateDeltaComputed, err, "sealing failed")
	}
	res.State = StateSealed

	// Sealed → AnchorSubmitted
	res.LogRef, err = p.submitWithRetry(ctx, func(ctx context.Context) (string, error) {
		return p.tlog.Submit(ctx, sealID, sealDigest, artifact)
	})
	if err != nil {
		return res, p.fail(res, StateSealed, err, "transparency log submission failed")
	}

	res.PinRef, err = p.submitWithRetry(ctx, func(ctx context.Context) (string, error) {
		return p.pins.Pin(ctx, sealDigest, artifact)
	})
	if err != nil {
		return res, p.fail(res, StateSealed, err, "pin submission failed")
	}
	res.State = StateAnchorSubmitted

	// AnchorSubmitted → Committed: anchors must validate and the policy
	// must approve before the new seal state becomes visible.
	anchorsOK, anchorReasons := p.verifier.AnchorsOK(ctx, sealDigest)
	res.AnchorsOK = anchorsOK
	if !anchorsOK {
		return res, p.fail(res, StateAnchorSubmitted, nil, anchorReasons...)
	}

	// Quorum binds to critical actions at dispatch time, not to seal
	// commits, so it is satisfied by construction here.
	res.Decision = policy.Evaluate(pol, policy.Signals{
		Coverage:   res.Coverage,
		Gaps:       res.Gaps,
		AnchorsOK:  anchorsOK,
		QuorumOK:   true,
		PresenceOK: true,
	})
	if !res.Decision.Promote {
		return res, p.fail(res, StateAnchorSubmitted, nil, res.Decision.Reasons...)
	}

	committed, err := p.store.CommitSealState(ctx, prev.Generation, sealID, current)
	if err != nil {
		return res, p.fail(res, StateAnchorSubmitted, err, "commit failed")
	}

	res.State = StateCommitted
	res.Committed = true
	res.Generation = committed.Generation
	res.Backlog = 0

	log.Info("pass committed",
		zap.String("seal_id", sealID),
		zap.String("seal_digest", sealDigest),
		zap.Int64("generation", committed.Generation),
		zap.Int("delta_paths", len(res.Delta)))
	return res, nil
}

// seal journals each delta path's content and returns the canonical seal
// artifact: the seal identity plus the delta mapping and content digests.
// A journal write failure aborts the pass; nothing downstream may assume
// the content was journaled.
func (p *Pipeline) seal(ctx context.Context, sealID, sealDigest string, current manifest.Manifest, delta []string) ([]byte, error) {
	deltaHashes := make(map[string]string, len(delta))
	for _, path := range delta {
		content, err := p.source.Read(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("seal %s: %w", path, err)
		}
		digest, err := p.store.JournalAppend(ctx, content, path)
		if err != nil {
			return nil, fmt.Errorf("seal %s: %w", path, err)
		}
		deltaHashes[path] = digest
	}

	artifact, err := manifest.MarshalCanonical(map[string]any{
		"seal_id":         sealID,
		"manifest_digest": sealDigest,
		"delta":           deltaHashes,
	})
	if err != nil {
		return nil, fmt.Errorf("seal artifact: %w", err)
	}
	return artifact, nil
}

// submitWithRetry calls an external submission with bounded attempts.
// Context cancellation stops retries immediately.
func (p *Pipeline) submitWithRetry(ctx context.Context, submit func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= submitAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ref, err := submit(ctx)
		if err == nil {
			return ref, nil
		}
		lastErr = err
		p.logger.Warn("anchor submission attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return "", fmt.Errorf("after %d attempts: %w", submitAttempts, lastErr)
}

// fail stamps the result and builds the PassError for a transition failure.
func (p *Pipeline) fail(res *PassResult, from State, err error, reasons ...string) error {
	res.State = StateFailed
	p.logger.Warn("pass failed",
		zap.String("pass_id", res.PassID),
		zap.String("from_state", string(from)),
		zap.Strings("reasons", reasons),
		zap.Error(err))
	if res.Decision.Promote {
		res.Decision = policy.Deny(reasons...)
	} else if len(res.Decision.Reasons) == 0 {
		res.Decision.Reasons = reasons
	}
	return &PassError{State: from, Reasons: reasons, Err: err}
}

// coverage is the fraction of observable paths that were actually read:
// observed / (observed + gaps). An empty tree with no gaps is full coverage.
func coverage(observed, gaps int64) float64 {
	total := observed + gaps
	if total == 0 {
		return 1
	}
	return float64(observed) / float64(total)
}
