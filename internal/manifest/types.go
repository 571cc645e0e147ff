package manifest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ContentRecord describes one observed content object.
// Identity is (Path, Digest); records are immutable once journaled.
type ContentRecord struct {
	Path      string    `json:"path"`
	Digest    string    `json:"digest"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// Manifest maps observed paths to content digests.
// Serialization and hashing always go through canonical JSON, so two
// manifests with the same mapping produce identical bytes and digests.
type Manifest map[string]string

// Paths returns the manifest's paths in sorted order.
func (m Manifest) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clone returns an independent copy of the manifest.
func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	for p, d := range m {
		out[p] = d
	}
	return out
}

// Diff computes the delta set: paths in current that are absent from
// previous or carry a different digest. Deleted paths (present previously,
// absent now) are NOT included. The result is sorted.
//
// Pure function: neither argument is mutated.
func Diff(current Manifest, previous map[string]string) []string {
	var changed []string
	for path, digest := range current {
		prev, ok := previous[path]
		if !ok || prev != digest {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}

// Scan walks root and builds a Manifest plus one ContentRecord per regular
// file. Paths are slash-separated and relative to root. Symlinks and
// directories are skipped. The context is checked between files so a large
// tree can be abandoned.
func Scan(ctx context.Context, root string) (Manifest, []ContentRecord, error) {
	m := make(Manifest)
	var records []ContentRecord

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		digest := ContentDigest(data)
		m[rel] = digest
		records = append(records, ContentRecord{
			Path:      rel,
			Digest:    digest,
			Size:      int64(len(data)),
			Timestamp: time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return m, records, nil
}
