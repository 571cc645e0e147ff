package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/deadbolt/internal/manifest"
)

// Source produces the current content snapshot and serves content bytes
// for journaling. Implementations must be stable within one pass: a path
// reported by Snapshot must be readable by Read until the pass ends.
type Source interface {
	// Snapshot returns the current manifest, per-file records, and the
	// number of gaps: paths that exist but could not be read. Gaps do not
	// fail the snapshot; they deny promotion via the policy evaluator.
	Snapshot(ctx context.Context) (manifest.Manifest, []manifest.ContentRecord, int64, error)

	// Read returns the content bytes for one snapshot path.
	Read(ctx context.Context, path string) ([]byte, error)
}

// DirSource snapshots a directory tree. Unreadable files count as gaps;
// symlinks and directories are skipped.
type DirSource struct {
	Root string
}

func (d *DirSource) Snapshot(ctx context.Context) (manifest.Manifest, []manifest.ContentRecord, int64, error) {
	m := make(manifest.Manifest)
	var (
		records []manifest.ContentRecord
		gaps    int64
	)

	err := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(path)
		if err != nil {
			gaps++
			return nil
		}

		digest := manifest.ContentDigest(data)
		m[rel] = digest
		records = append(records, manifest.ContentRecord{
			Path:      rel,
			Digest:    digest,
			Size:      int64(len(data)),
			Timestamp: time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("snapshot %s: %w", d.Root, err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return m, records, gaps, nil
}

func (d *DirSource) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// MapSource is an in-memory Source for tests.
type MapSource struct {
	Files map[string][]byte
	Gaps  int64
}

func (m *MapSource) Snapshot(ctx context.Context) (manifest.Manifest, []manifest.ContentRecord, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, 0, err
	}
	mf := make(manifest.Manifest, len(m.Files))
	var records []manifest.ContentRecord
	for path, data := range m.Files {
		digest := manifest.ContentDigest(data)
		mf[path] = digest
		records = append(records, manifest.ContentRecord{
			Path:      path,
			Digest:    digest,
			Size:      int64(len(data)),
			Timestamp: time.Now().UTC(),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return mf, records, m.Gaps, nil
}

func (m *MapSource) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := m.Files[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, fs.ErrNotExist)
	}
	return data, nil
}
