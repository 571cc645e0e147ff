package testutil

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/deadbolt/internal/anchor"
	"github.com/roach88/deadbolt/internal/manifest"
)

// Signer is an in-memory ed25519 quorum signer for tests.
type Signer struct {
	KeyID   string
	Expires time.Time

	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewSigner generates a fresh ed25519 keypair under the given key id.
func NewSigner(keyID string) *Signer {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(fmt.Sprintf("generate test key: %v", err))
	}
	return &Signer{KeyID: keyID, pub: pub, priv: priv}
}

// Credential signs (actionID, sealDigest) and returns the JSON credential
// bytes as they would appear in a keys/signed/*.sig file.
func (s *Signer) Credential(actionID, sealDigest string, signedAt time.Time) []byte {
	sig := ed25519.Sign(s.priv, manifest.CredentialPayload(actionID, sealDigest))
	data, err := json.Marshal(map[string]any{
		"key_id":      s.KeyID,
		"action_id":   actionID,
		"seal_digest": sealDigest,
		"signed_at":   signedAt.UTC().Format(time.RFC3339),
		"signature":   base64.StdEncoding.EncodeToString(sig),
	})
	if err != nil {
		panic(err)
	}
	return data
}

// ForgedCredential returns a credential whose signature does not verify.
func (s *Signer) ForgedCredential(actionID, sealDigest string) []byte {
	data := s.Credential(actionID, sealDigest, time.Now())
	var c map[string]any
	if err := json.Unmarshal(data, &c); err != nil {
		panic(err)
	}
	c["signature"] = base64.StdEncoding.EncodeToString(make([]byte, ed25519.SignatureSize))
	out, err := json.Marshal(c)
	if err != nil {
		panic(err)
	}
	return out
}

// RegistryYAML renders an authorized_keys.yaml body trusting the given
// signers.
func RegistryYAML(signers ...*Signer) []byte {
	out := []byte("keys:\n")
	for _, s := range signers {
		out = append(out, fmt.Sprintf("  - key_id: %s\n    public_key: %s\n",
			s.KeyID, hex.EncodeToString(s.pub))...)
		if !s.Expires.IsZero() {
			out = append(out, fmt.Sprintf("    expires: %s\n", s.Expires.UTC().Format(time.RFC3339))...)
		}
	}
	return out
}

// BeaconJSON renders a START_BEACON.json body.
func BeaconJSON(operatorID string, ts time.Time) []byte {
	data, err := json.Marshal(map[string]any{
		"operator_id": operatorID,
		"timezone":    "UTC",
		"timestamp":   ts.UTC().Format(time.RFC3339),
	})
	if err != nil {
		panic(err)
	}
	return data
}

// AckJSON renders an ACK_HUMAN.json body.
func AckJSON(status string, ts time.Time) []byte {
	data, err := json.Marshal(map[string]any{
		"status":    status,
		"timestamp": ts.UTC().Format(time.RFC3339),
		"note":      "test ack",
	})
	if err != nil {
		panic(err)
	}
	return data
}

// ProofLine renders one REKOR_PROOFS.jsonl line: a valid single-leaf
// inclusion proof for the digest.
func ProofLine(logID, sealDigest string) []byte {
	data, err := json.Marshal(anchor.BuildProof(logID, sealDigest))
	if err != nil {
		panic(err)
	}
	return append(data, '\n')
}

// PinJSON renders a PIN_REPORT.json body confirming the digest is pinned.
func PinJSON(sealDigest string) []byte {
	data, err := json.Marshal(anchor.PinReport{
		Digest:     sealDigest,
		Pinned:     true,
		Replicas:   3,
		Service:    "test-pinner",
		ReportedAt: time.Now().UTC(),
	})
	if err != nil {
		panic(err)
	}
	return data
}
