// Package manifest defines the content snapshot model for a seal pass.
//
// A Manifest is a deterministic path→digest mapping describing everything
// observed at one point in time. Manifests are produced fresh on every pass
// and never mutated after sealing; all identity (seal IDs, anchor payloads,
// quorum signing payloads) derives from the manifest's canonical JSON bytes
// hashed with domain separation.
//
// The delta computer (Diff) is a pure function over two manifests. Deletions
// are intentionally excluded from the delta: a path counts as changed only
// when it is new or its digest differs. Callers that need deletion tracking
// must diff in both directions explicitly.
package manifest
