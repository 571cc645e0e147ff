package quorum

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/deadbolt/internal/manifest"
)

// Credential is one authorization toward quorum, as found in a *.sig file.
// The signature covers manifest.CredentialPayload(ActionID, SealDigest).
type Credential struct {
	KeyID      string    `json:"key_id"`
	ActionID   string    `json:"action_id"`
	SealDigest string    `json:"seal_digest"`
	SignedAt   time.Time `json:"signed_at"`
	Signature  string    `json:"signature"` // base64
}

// Verifier validates quorum credentials against the authorized registry.
type Verifier struct {
	evidence fs.FS
	registry *Registry
	now      func() time.Time
	logger   *zap.Logger
}

// NewVerifier builds a quorum verifier. now may be nil (wall clock);
// logger may be nil (no-op).
func NewVerifier(evidence fs.FS, registry *Registry, now func() time.Time, logger *zap.Logger) *Verifier {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{evidence: evidence, registry: registry, now: now, logger: logger}
}

// QuorumOK counts valid, distinct-signer credentials for (actionID,
// sealDigest) and reports whether the count meets requiredN. Credentials
// that fail verification contribute reasons but never count; duplicate
// signers count once.
func (v *Verifier) QuorumOK(actionID, sealDigest string, requiredN int) (bool, []string) {
	matches, err := fs.Glob(v.evidence, CredentialGlob)
	if err != nil {
		return false, []string{fmt.Sprintf("scan credentials: %v", err)}
	}
	sort.Strings(matches)

	var reasons []string
	signers := map[string]bool{}

	for _, path := range matches {
		keyID, err := v.verifyCredential(path, actionID, sealDigest)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		if signers[keyID] {
			reasons = append(reasons, fmt.Sprintf("%s: duplicate signer %q", path, keyID))
			continue
		}
		signers[keyID] = true
	}

	if len(signers) < requiredN {
		reasons = append(reasons, fmt.Sprintf("quorum: %d distinct valid signers, need %d", len(signers), requiredN))
		v.logger.Info("quorum not met",
			zap.String("action_id", actionID),
			zap.Int("valid_signers", len(signers)),
			zap.Int("required", requiredN))
		return false, reasons
	}

	v.logger.Debug("quorum met",
		zap.String("action_id", actionID),
		zap.Int("valid_signers", len(signers)))
	return true, nil
}

// verifyCredential loads one credential file and checks it end to end:
// known signer, unexpired key, matching action and digest, valid signature.
// Returns the signer key id on success.
func (v *Verifier) verifyCredential(path, actionID, sealDigest string) (string, error) {
	data, err := fs.ReadFile(v.evidence, path)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}

	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("malformed credential: %w", err)
	}

	key, ok := v.registry.Lookup(c.KeyID)
	if !ok {
		return "", fmt.Errorf("unknown signer %q", c.KeyID)
	}
	if !key.Expires.IsZero() && !v.now().Before(key.Expires) {
		return "", fmt.Errorf("signer %q key expired at %s", c.KeyID, key.Expires.Format(time.RFC3339))
	}

	if c.ActionID != actionID {
		return "", fmt.Errorf("credential authorizes action %q, want %q", c.ActionID, actionID)
	}
	if c.SealDigest != sealDigest {
		return "", fmt.Errorf("credential covers seal %s, want %s", c.SealDigest, sealDigest)
	}

	pub, err := hex.DecodeString(key.PublicKey)
	if err != nil {
		return "", fmt.Errorf("signer %q public key: %w", c.KeyID, err)
	}

	sig, err := base64.StdEncoding.DecodeString(c.Signature)
	if err != nil {
		return "", fmt.Errorf("signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return "", fmt.Errorf("signature is %d bytes, want %d", len(sig), ed25519.SignatureSize)
	}

	payload := manifest.CredentialPayload(c.ActionID, c.SealDigest)
	if !ed25519.Verify(ed25519.PublicKey(pub), payload, sig) {
		return "", fmt.Errorf("signature does not verify for signer %q", c.KeyID)
	}

	return c.KeyID, nil
}
