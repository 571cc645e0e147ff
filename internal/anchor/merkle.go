package anchor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// RFC 6962 hashing: leaves and interior nodes are domain-separated by a
// one-byte prefix so a leaf can never be confused with a node.
const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

func leafHash(data []byte) []byte {
	h := sha256.New()
	h.Write([]byte{leafPrefix})
	h.Write(data)
	return h.Sum(nil)
}

func nodeHash(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte{nodePrefix})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// Verify recomputes the merkle root from the proof's audit path and
// compares it to the proof's root hash. The leaf is the seal digest the
// proof claims inclusion for; Verify fails if the proof is for a different
// digest than expected.
//
// This is the inclusion-proof check from RFC 6962 / RFC 9162 §2.1.3.2.
func (p InclusionProof) Verify(expectedLeafDigest string) error {
	if p.LeafDigest != expectedLeafDigest {
		return fmt.Errorf("proof is for leaf %s, want %s", p.LeafDigest, expectedLeafDigest)
	}
	if p.TreeSize <= 0 {
		return fmt.Errorf("tree size %d is not positive", p.TreeSize)
	}
	if p.LeafIndex < 0 || p.LeafIndex >= p.TreeSize {
		return fmt.Errorf("leaf index %d out of range for tree size %d", p.LeafIndex, p.TreeSize)
	}

	root, err := hex.DecodeString(p.RootHash)
	if err != nil {
		return fmt.Errorf("root hash: %w", err)
	}

	path := make([][]byte, len(p.Path))
	for i, s := range p.Path {
		node, err := hex.DecodeString(s)
		if err != nil {
			return fmt.Errorf("path[%d]: %w", i, err)
		}
		if len(node) != sha256.Size {
			return fmt.Errorf("path[%d]: node is %d bytes, want %d", i, len(node), sha256.Size)
		}
		path[i] = node
	}

	fn := p.LeafIndex
	sn := p.TreeSize - 1
	r := leafHash([]byte(p.LeafDigest))

	for i, node := range path {
		if sn == 0 {
			return fmt.Errorf("path[%d]: audit path longer than tree height", i)
		}
		if fn%2 == 1 || fn == sn {
			r = nodeHash(node, r)
			if fn%2 == 0 {
				for fn%2 == 0 && fn != 0 {
					fn >>= 1
					sn >>= 1
				}
			}
		} else {
			r = nodeHash(r, node)
		}
		fn >>= 1
		sn >>= 1
	}

	if sn != 0 {
		return fmt.Errorf("audit path shorter than tree height")
	}
	if !bytes.Equal(r, root) {
		return fmt.Errorf("recomputed root %x does not match proof root %s", r, p.RootHash)
	}
	return nil
}

// BuildProof constructs a valid inclusion proof for a single-leaf tree.
// Test fixtures and in-process fake logs use it; production proofs come
// from the external transparency-log collaborator.
func BuildProof(logID, leafDigest string) InclusionProof {
	return InclusionProof{
		LogID:      logID,
		LeafDigest: leafDigest,
		LeafIndex:  0,
		TreeSize:   1,
		RootHash:   hex.EncodeToString(leafHash([]byte(leafDigest))),
	}
}
