package store

import (
	"context"
	"fmt"
	"time"
)

// Receipt records one firing of the critical action dispatcher.
type Receipt struct {
	ReceiptID   string    `json:"receipt_id"`
	ActionID    string    `json:"action_id"`
	EpisodeKey  string    `json:"episode_key"`
	SealID      string    `json:"seal_id"`
	Evidence    string    `json:"evidence"`
	FiredAt     time.Time `json:"fired_at"`
}

// ConsumeEpisode atomically marks a trigger episode as consumed and records
// the receipt, in one transaction. Returns won=false when the episode was
// already consumed (the INSERT hits the primary key and affects no rows).
//
// This is the compare-and-set the dispatcher's exactly-once guarantee rests
// on: of N concurrent callers with the same episode key, exactly one sees
// won=true.
func (s *Store) ConsumeEpisode(ctx context.Context, key string, r Receipt) (won bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("consume episode: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO episodes (episode_key, action_id, receipt_id, consumed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(episode_key) DO NOTHING
	`, key, r.ActionID, r.ReceiptID, r.FiredAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("consume episode: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume episode: %w", err)
	}
	if n == 0 {
		// Episode already consumed. Roll back; no receipt is written.
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts (receipt_id, action_id, episode_key, seal_id, evidence_json, fired_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ReceiptID, r.ActionID, r.EpisodeKey, r.SealID, r.Evidence, r.FiredAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("consume episode: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("consume episode: %w", err)
	}
	return true, nil
}

// EpisodeConsumed reports whether the given episode key has been consumed.
func (s *Store) EpisodeConsumed(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM episodes WHERE episode_key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("episode consumed: %w", err)
	}
	return n > 0, nil
}

// ReceiptsForAction returns all receipts recorded for an action, oldest
// first. A correctly behaving dispatcher yields at most one per episode.
func (s *Store) ReceiptsForAction(ctx context.Context, actionID string) ([]Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT receipt_id, action_id, episode_key, seal_id, evidence_json, fired_at
		FROM receipts WHERE action_id = ? ORDER BY fired_at ASC
	`, actionID)
	if err != nil {
		return nil, fmt.Errorf("receipts for action: %w", err)
	}
	defer rows.Close()

	var receipts []Receipt
	for rows.Next() {
		var (
			r       Receipt
			firedAt string
		)
		if err := rows.Scan(&r.ReceiptID, &r.ActionID, &r.EpisodeKey, &r.SealID, &r.Evidence, &firedAt); err != nil {
			return nil, fmt.Errorf("receipts for action: %w", err)
		}
		r.FiredAt, err = time.Parse(time.RFC3339Nano, firedAt)
		if err != nil {
			return nil, fmt.Errorf("receipts for action: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}
