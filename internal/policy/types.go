package policy

import "time"

// Predicate names one gate in the promote.only_if conjunction.
// The set is closed: loading a policy with an unknown predicate fails.
type Predicate string

const (
	// PredicatePresence requires a fresh operator beacon and acknowledgment.
	PredicatePresence Predicate = "presence"

	// PredicateCoverage requires coverage >= coverage_threshold.
	PredicateCoverage Predicate = "coverage"

	// PredicateGaps requires zero observed gaps.
	PredicateGaps Predicate = "gaps"

	// PredicateAnchors requires validated transparency-log and pin anchors.
	PredicateAnchors Predicate = "anchors"

	// PredicateQuorum requires the distinct-signer authorization threshold.
	PredicateQuorum Predicate = "quorum"
)

// knownPredicates is the closed predicate set accepted in promote.only_if.
var knownPredicates = map[Predicate]bool{
	PredicatePresence: true,
	PredicateCoverage: true,
	PredicateGaps:     true,
	PredicateAnchors:  true,
	PredicateQuorum:   true,
}

// DefaultPresenceMaxAge bounds beacon/ack freshness when the policy file
// does not set presence.max_age. One hour: long enough for an operator to
// establish presence and run a pass by hand, short enough that yesterday's
// beacon never gates today's action.
const DefaultPresenceMaxAge = time.Hour

// PresencePolicy configures the presence gate.
type PresencePolicy struct {
	RequireStartBeacon bool
	AckFile            string
	MaxAge             time.Duration
}

// QuorumPolicy configures the quorum verifier.
type QuorumPolicy struct {
	RequiredN int
}

// PromotePolicy declares the ordered predicate conjunction for promotion.
type PromotePolicy struct {
	OnlyIf []Predicate
}

// Policy is the full FEED_LOCK configuration. Loaded once per pass,
// never mutated by the pipeline.
type Policy struct {
	SchemaVersion     int
	CoverageThreshold float64
	CriticalActions   []string
	Presence          PresencePolicy
	Quorum            QuorumPolicy
	Promote           PromotePolicy
}

// IsCritical reports whether actionID is declared to require quorum.
func (p Policy) IsCritical(actionID string) bool {
	for _, a := range p.CriticalActions {
		if a == actionID {
			return true
		}
	}
	return false
}
