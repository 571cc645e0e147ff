package policy

// Signals carries everything the evaluator needs to decide a promotion.
// Produced by the pipeline pass; the evaluator itself performs no I/O.
type Signals struct {
	Coverage   float64
	Gaps       int64
	AnchorsOK  bool
	QuorumOK   bool
	PresenceOK bool
}

// Decision is the evaluator's verdict. A deny always carries the complete
// list of failing predicates so operators never see a bare "failed".
type Decision struct {
	Promote bool
	Reasons []string
}

// Deny constructs a deny decision with the given reasons.
func Deny(reasons ...string) Decision {
	return Decision{Promote: false, Reasons: reasons}
}

// Evaluate decides promotion for one pass.
//
// The promote.only_if predicates are checked in declared order; every
// failing predicate contributes a reason (not just the first). Coverage
// below the threshold and gaps > 0 deny unconditionally, whether or not
// the corresponding predicates appear in only_if.
func Evaluate(p Policy, sig Signals) Decision {
	var reasons []string
	failed := map[Predicate]bool{}

	fail := func(pred Predicate) {
		if !failed[pred] {
			failed[pred] = true
			reasons = append(reasons, string(pred))
		}
	}

	for _, pred := range p.Promote.OnlyIf {
		if !predicateHolds(pred, p, sig) {
			fail(pred)
		}
	}

	// Hard floors: these deny even when not listed in only_if.
	if sig.Coverage < p.CoverageThreshold {
		fail(PredicateCoverage)
	}
	if sig.Gaps > 0 {
		fail(PredicateGaps)
	}

	if len(reasons) > 0 {
		return Decision{Promote: false, Reasons: reasons}
	}
	return Decision{Promote: true}
}

func predicateHolds(pred Predicate, p Policy, sig Signals) bool {
	switch pred {
	case PredicatePresence:
		return sig.PresenceOK
	case PredicateCoverage:
		return sig.Coverage >= p.CoverageThreshold
	case PredicateGaps:
		return sig.Gaps == 0
	case PredicateAnchors:
		return sig.AnchorsOK
	case PredicateQuorum:
		return sig.QuorumOK
	default:
		// Unknown predicates are rejected at load time; treat a stray one
		// as failing rather than silently passing.
		return false
	}
}
