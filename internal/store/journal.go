package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/deadbolt/internal/manifest"
)

// JournalEntry is one immutable record of observed content.
// Rows are append-only; nothing edits or removes them.
type JournalEntry struct {
	Seq         int64     `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
	SourceLabel string    `json:"source_label"`
	Digest      string    `json:"digest"`
	Size        int64     `json:"size"`
}

// JournalAppend computes the content digest, appends one journal record,
// and returns the digest. A write failure is fatal to the current pass:
// nothing downstream may assume the content was journaled.
func (s *Store) JournalAppend(ctx context.Context, content []byte, sourceLabel string) (string, error) {
	digest := manifest.ContentDigest(content)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal (timestamp, source_label, digest, size)
		VALUES (?, ?, ?, ?)
	`, time.Now().UTC().Format(time.RFC3339Nano), sourceLabel, digest, int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("journal append: %w", err)
	}

	return digest, nil
}

// JournalCount returns the total number of journaled records.
func (s *Store) JournalCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal`).Scan(&n); err != nil {
		return 0, fmt.Errorf("journal count: %w", err)
	}
	return n, nil
}

// JournalRecent returns up to limit of the most recent journal entries,
// newest first. Used by the status command.
func (s *Store) JournalRecent(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, timestamp, source_label, digest, size
		FROM journal ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			e  JournalEntry
			ts string
		)
		if err := rows.Scan(&e.Seq, &ts, &e.SourceLabel, &e.Digest, &e.Size); err != nil {
			return nil, fmt.Errorf("journal recent: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("journal recent: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
