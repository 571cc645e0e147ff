// Package anchor verifies that a sealed manifest was independently,
// publicly recorded and durably stored.
//
// Two anchors are required, and both must validate:
//
//   - a transparency-log inclusion proof whose leaf commits to the sealed
//     manifest digest and whose audit path recomputes to the signed root
//   - a pin report confirming the same content is held in durable storage
//
// The verifier is strictly read-only: it consumes evidence produced by
// external collaborators and never creates or mutates proofs. A lookup
// timeout is treated as "not ok", never as "ok".
package anchor

import "time"

// ProofsPath is the transparency-log evidence file: one JSON-encoded
// InclusionProof per line, relative to the evidence root.
const ProofsPath = "out/REKOR_PROOFS.jsonl"

// PinReportPath is the durable-storage evidence file.
const PinReportPath = "out/PIN_REPORT.json"

// InclusionProof is a transparency-log inclusion proof for one seal.
// LeafDigest names the sealed manifest digest the leaf commits to;
// RootHash and Path are hex-encoded SHA-256 values.
type InclusionProof struct {
	LogID      string   `json:"log_id"`
	LeafDigest string   `json:"leaf_digest"`
	LeafIndex  int64    `json:"leaf_index"`
	TreeSize   int64    `json:"tree_size"`
	RootHash   string   `json:"root_hash"`
	Path       []string `json:"path"`
}

// PinReport confirms a seal artifact is pinned in durable storage.
type PinReport struct {
	Digest     string    `json:"digest"`
	Pinned     bool      `json:"pinned"`
	Replicas   int       `json:"replicas"`
	Service    string    `json:"service"`
	ReportedAt time.Time `json:"reported_at"`
}
