// Package quorum counts validated, distinct-signer authorizations toward a
// required threshold.
//
// Quorum is cryptographic, not a file count: every credential must carry an
// ed25519 signature that verifies against a key in the authorized registry,
// the signer must not be expired, and duplicate signers count once. An
// unverifiable credential is skipped with a reason, never counted.
package quorum

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"
)

// RegistryPath is the authorized signer registry, relative to the evidence
// root. YAML, maintained by the authorization subsystem.
const RegistryPath = "keys/authorized_keys.yaml"

// CredentialGlob matches individual authorization credentials.
const CredentialGlob = "keys/signed/*.sig"

// AuthorizedKey is one signer the registry trusts. PublicKey is the
// hex-encoded 32-byte ed25519 public key. A zero Expires never expires.
type AuthorizedKey struct {
	KeyID     string    `yaml:"key_id"`
	PublicKey string    `yaml:"public_key"`
	Expires   time.Time `yaml:"expires,omitempty"`
}

// Registry is the set of authorized signer keys, indexed by key id.
type Registry struct {
	keys map[string]AuthorizedKey
}

type registryFile struct {
	Keys []AuthorizedKey `yaml:"keys"`
}

// LoadRegistry reads the authorized key registry from the evidence
// filesystem. Duplicate key ids and malformed public keys are rejected at
// load time so verification never has to guess which key was meant.
func LoadRegistry(evidence fs.FS) (*Registry, error) {
	data, err := fs.ReadFile(evidence, RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("load key registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("load key registry: %w", err)
	}

	r := &Registry{keys: make(map[string]AuthorizedKey, len(file.Keys))}
	for _, k := range file.Keys {
		if k.KeyID == "" {
			return nil, fmt.Errorf("load key registry: entry with empty key_id")
		}
		if _, dup := r.keys[k.KeyID]; dup {
			return nil, fmt.Errorf("load key registry: duplicate key_id %q", k.KeyID)
		}
		raw, err := hex.DecodeString(k.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("load key registry: key %q: %w", k.KeyID, err)
		}
		if len(raw) != 32 {
			return nil, fmt.Errorf("load key registry: key %q: public key is %d bytes, want 32", k.KeyID, len(raw))
		}
		r.keys[k.KeyID] = k
	}
	return r, nil
}

// Lookup returns the authorized key for id, if present.
func (r *Registry) Lookup(id string) (AuthorizedKey, bool) {
	k, ok := r.keys[id]
	return k, ok
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	return len(r.keys)
}
