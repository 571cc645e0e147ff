package anchor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TransparencyLog is the external transparency-log collaborator: it accepts
// an artifact digest and eventually publishes an inclusion proof into the
// evidence directory. Submit returns a reference to the submission, not the
// proof itself; proofs are consumed later by the Verifier.
type TransparencyLog interface {
	Submit(ctx context.Context, sealID, sealDigest string, artifact []byte) (ref string, err error)
}

// PinService is the external durable-storage collaborator.
type PinService interface {
	Pin(ctx context.Context, sealDigest string, artifact []byte) (ref string, err error)
}

// OutboxSubmitter implements both collaborator contracts by exporting the
// seal artifact into an outbox directory for out-of-band pickup. It never
// writes proofs or pin reports; those arrive from the real collaborators.
type OutboxSubmitter struct {
	Dir string
}

type outboxEntry struct {
	SealID     string `json:"seal_id"`
	SealDigest string `json:"seal_digest"`
	Kind       string `json:"kind"`
	Artifact   []byte `json:"artifact"`
}

func (o *OutboxSubmitter) Submit(ctx context.Context, sealID, sealDigest string, artifact []byte) (string, error) {
	return o.drop(ctx, "transparency", sealID, sealDigest, artifact)
}

func (o *OutboxSubmitter) Pin(ctx context.Context, sealDigest string, artifact []byte) (string, error) {
	return o.drop(ctx, "pin", sealDigest, sealDigest, artifact)
}

func (o *OutboxSubmitter) drop(ctx context.Context, kind, sealID, sealDigest string, artifact []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return "", fmt.Errorf("outbox: %w", err)
	}

	entry := outboxEntry{SealID: sealID, SealDigest: sealDigest, Kind: kind, Artifact: artifact}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("outbox: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", kind, sealDigest)
	path := filepath.Join(o.Dir, name)

	// Write-then-rename so a half-written artifact is never picked up.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("outbox: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("outbox: %w", err)
	}

	return name, nil
}
