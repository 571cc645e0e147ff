package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainManifest   = "deadbolt/manifest/v1"
	DomainContent    = "deadbolt/content/v1"
	DomainCredential = "deadbolt/credential/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentDigest computes the digest used to identify one content object in
// the hash journal and in manifests.
func ContentDigest(data []byte) string {
	return hashWithDomain(DomainContent, data)
}

// Digest computes the manifest's content-addressed identity: the
// domain-separated hash of its canonical JSON bytes. Stable across process
// restarts given the same mapping.
func (m Manifest) Digest() (string, error) {
	canonical, err := MarshalCanonical(m)
	if err != nil {
		return "", fmt.Errorf("manifest digest: %w", err)
	}
	return hashWithDomain(DomainManifest, canonical), nil
}

// CredentialPayload is the byte string a quorum signer signs: the action
// identifier and the sealed manifest digest, null-separated so neither can
// masquerade as the other.
func CredentialPayload(actionID, sealDigest string) []byte {
	payload := make([]byte, 0, len(DomainCredential)+len(actionID)+len(sealDigest)+2)
	payload = append(payload, DomainCredential...)
	payload = append(payload, 0x00)
	payload = append(payload, actionID...)
	payload = append(payload, 0x00)
	payload = append(payload, sealDigest...)
	return payload
}
