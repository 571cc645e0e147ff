package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/deadbolt/internal/store"
)

// Reporter appends one heartbeat record per pass, whatever the outcome.
// Reporting never blocks or fails the pipeline: a write failure is logged
// and swallowed.
type Reporter struct {
	store  *store.Store
	nodeID string
	logger *zap.Logger
	now    func() time.Time
}

// NewReporter builds a health reporter for nodeID.
// now may be nil (wall clock); logger may be nil (no-op).
func NewReporter(s *store.Store, nodeID string, now func() time.Time, logger *zap.Logger) *Reporter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{store: s, nodeID: nodeID, now: now, logger: logger}
}

// Report appends the heartbeat for one pass result.
func (r *Reporter) Report(ctx context.Context, res *PassResult) {
	rec := store.HealthRecord{
		Timestamp: r.now().UTC(),
		NodeID:    r.nodeID,
		Coverage:  res.Coverage,
		Gaps:      res.Gaps,
		Backlog:   res.Backlog,
		Promoted:  res.Committed,
	}
	if err := r.store.AppendHealth(ctx, rec); err != nil {
		r.logger.Error("health record write failed", zap.Error(err))
	}
}
