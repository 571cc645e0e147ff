package store

import (
	"context"
	"fmt"
	"time"
)

// HealthRecord is one heartbeat row, appended per pipeline pass regardless
// of outcome.
type HealthRecord struct {
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
	Coverage  float64   `json:"coverage"`
	Gaps      int64     `json:"gaps"`
	Backlog   int64     `json:"backlog"`
	Promoted  bool      `json:"promoted"`
}

// AppendHealth appends one heartbeat record.
func (s *Store) AppendHealth(ctx context.Context, r HealthRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health (timestamp, node_id, coverage, gaps, backlog, promoted)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.Timestamp.UTC().Format(time.RFC3339Nano), r.NodeID, r.Coverage, r.Gaps, r.Backlog, boolToInt(r.Promoted))
	if err != nil {
		return fmt.Errorf("append health: %w", err)
	}
	return nil
}

// RecentHealth returns up to limit heartbeat records, newest first.
func (s *Store) RecentHealth(ctx context.Context, limit int) ([]HealthRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, node_id, coverage, gaps, backlog, promoted
		FROM health ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent health: %w", err)
	}
	defer rows.Close()

	var records []HealthRecord
	for rows.Next() {
		var (
			r        HealthRecord
			ts       string
			promoted int
		)
		if err := rows.Scan(&ts, &r.NodeID, &r.Coverage, &r.Gaps, &r.Backlog, &promoted); err != nil {
			return nil, fmt.Errorf("recent health: %w", err)
		}
		r.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("recent health: %w", err)
		}
		r.Promoted = promoted != 0
		records = append(records, r)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
