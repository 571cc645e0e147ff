package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/deadbolt/internal/manifest"
)

// SealState is the last successfully committed manifest. Singleton row,
// replaced only by a strictly newer successful seal.
type SealState struct {
	Generation  int64
	SealID      string
	Manifest    manifest.Manifest
	Digest      string
	CommittedAt time.Time
}

// Empty reports whether this is the zero state (no seal ever committed).
func (st SealState) Empty() bool {
	return st.Generation == 0
}

// LoadSealState returns the persisted seal state, or the empty state
// (generation 0, empty manifest) when nothing has been committed yet.
//
// The stored manifest digest is recomputed and checked against the stored
// value; a mismatch or an unparseable row is reported as CorruptionError
// and must not be treated as an empty state.
func (s *Store) LoadSealState(ctx context.Context) (SealState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT generation, seal_id, manifest_json, manifest_digest, committed_at
		FROM seal_state WHERE id = 1
	`)

	var (
		st           SealState
		manifestJSON string
		committedAt  string
	)
	err := row.Scan(&st.Generation, &st.SealID, &manifestJSON, &st.Digest, &committedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SealState{Manifest: manifest.Manifest{}}, nil
	}
	if err != nil {
		return SealState{}, fmt.Errorf("load seal state: %w", err)
	}

	var m manifest.Manifest
	if err := json.Unmarshal([]byte(manifestJSON), &m); err != nil {
		return SealState{}, &CorruptionError{Field: "manifest_json", Message: err.Error()}
	}
	st.Manifest = m

	recomputed, err := m.Digest()
	if err != nil {
		return SealState{}, &CorruptionError{Field: "manifest_json", Message: err.Error()}
	}
	if recomputed != st.Digest {
		return SealState{}, &CorruptionError{
			Field:   "manifest_digest",
			Message: fmt.Sprintf("stored digest %s does not match recomputed %s", st.Digest, recomputed),
		}
	}

	st.CommittedAt, err = time.Parse(time.RFC3339Nano, committedAt)
	if err != nil {
		return SealState{}, &CorruptionError{Field: "committed_at", Message: err.Error()}
	}

	return st, nil
}

// CommitSealState atomically replaces the seal state with a strictly newer
// generation. prevGeneration must equal the persisted generation (0 for the
// first commit); otherwise ErrStaleGeneration is returned and nothing
// changes. The write is transactional - a reader never observes a torn row.
func (s *Store) CommitSealState(ctx context.Context, prevGeneration int64, sealID string, m manifest.Manifest) (SealState, error) {
	digest, err := m.Digest()
	if err != nil {
		return SealState{}, fmt.Errorf("commit seal state: %w", err)
	}

	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return SealState{}, fmt.Errorf("commit seal state: %w", err)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SealState{}, fmt.Errorf("commit seal state: %w", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT generation FROM seal_state WHERE id = 1`).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		current = 0
	} else if err != nil {
		return SealState{}, fmt.Errorf("commit seal state: %w", err)
	}

	if current != prevGeneration {
		return SealState{}, fmt.Errorf("commit seal state: have generation %d, caller saw %d: %w",
			current, prevGeneration, ErrStaleGeneration)
	}

	next := current + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO seal_state (id, generation, seal_id, manifest_json, manifest_digest, committed_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			generation      = excluded.generation,
			seal_id         = excluded.seal_id,
			manifest_json   = excluded.manifest_json,
			manifest_digest = excluded.manifest_digest,
			committed_at    = excluded.committed_at
	`, next, sealID, string(manifestJSON), digest, now.Format(time.RFC3339Nano))
	if err != nil {
		return SealState{}, fmt.Errorf("commit seal state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return SealState{}, fmt.Errorf("commit seal state: %w", err)
	}

	return SealState{
		Generation:  next,
		SealID:      sealID,
		Manifest:    m.Clone(),
		Digest:      digest,
		CommittedAt: now,
	}, nil
}
