package policy

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Load reads and validates a FEED_LOCK policy file.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The file must contain a top-level `policy` struct, e.g.:
//
//	policy: {
//		schema_version:     1
//		coverage_threshold: 0.99
//		critical_actions: ["publish-keys"]
//		presence: {
//			require_start_beacon: true
//			ack_file:             "out/ACK_HUMAN.json"
//			max_age:              "1h"
//		}
//		quorum: required_n: 2
//		promote: only_if: ["presence", "coverage", "gaps", "anchors", "quorum"]
//	}
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("read %s: %v", path, err)}
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("compile: %v", err)}
	}

	return compile(v.LookupPath(cue.ParsePath("policy")))
}

// compile parses a CUE value into a Policy. Exposed separately from Load so
// tests can compile policy snippets without touching the filesystem.
func compile(v cue.Value) (*Policy, error) {
	if !v.Exists() {
		return nil, &ConfigError{Field: "policy", Message: "top-level policy struct is required"}
	}
	if err := v.Err(); err != nil {
		return nil, &ConfigError{Field: "policy", Message: err.Error(), Pos: v.Pos()}
	}

	p := &Policy{}

	schemaVal := v.LookupPath(cue.ParsePath("schema_version"))
	if !schemaVal.Exists() {
		return nil, &ConfigError{Field: "schema_version", Message: "schema_version is required", Pos: v.Pos()}
	}
	sv, err := schemaVal.Int64()
	if err != nil {
		return nil, &ConfigError{Field: "schema_version", Message: err.Error(), Pos: schemaVal.Pos()}
	}
	p.SchemaVersion = int(sv)

	covVal := v.LookupPath(cue.ParsePath("coverage_threshold"))
	if !covVal.Exists() {
		return nil, &ConfigError{Field: "coverage_threshold", Message: "coverage_threshold is required", Pos: v.Pos()}
	}
	cov, err := covVal.Float64()
	if err != nil {
		return nil, &ConfigError{Field: "coverage_threshold", Message: err.Error(), Pos: covVal.Pos()}
	}
	if cov < 0 || cov > 1 {
		return nil, &ConfigError{
			Field:   "coverage_threshold",
			Message: fmt.Sprintf("must be in [0,1], got %v", cov),
			Pos:     covVal.Pos(),
		}
	}
	p.CoverageThreshold = cov

	p.CriticalActions, err = stringList(v, "critical_actions")
	if err != nil {
		return nil, err
	}

	if err := compilePresence(v, p); err != nil {
		return nil, err
	}
	if err := compileQuorum(v, p); err != nil {
		return nil, err
	}
	if err := compilePromote(v, p); err != nil {
		return nil, err
	}

	return p, nil
}

func compilePresence(v cue.Value, p *Policy) error {
	pres := v.LookupPath(cue.ParsePath("presence"))
	if !pres.Exists() {
		return &ConfigError{Field: "presence", Message: "presence is required", Pos: v.Pos()}
	}

	reqVal := pres.LookupPath(cue.ParsePath("require_start_beacon"))
	if reqVal.Exists() {
		req, err := reqVal.Bool()
		if err != nil {
			return &ConfigError{Field: "presence.require_start_beacon", Message: err.Error(), Pos: reqVal.Pos()}
		}
		p.Presence.RequireStartBeacon = req
	}

	ackVal := pres.LookupPath(cue.ParsePath("ack_file"))
	if ackVal.Exists() {
		ack, err := ackVal.String()
		if err != nil {
			return &ConfigError{Field: "presence.ack_file", Message: err.Error(), Pos: ackVal.Pos()}
		}
		p.Presence.AckFile = ack
	}

	p.Presence.MaxAge = DefaultPresenceMaxAge
	ageVal := pres.LookupPath(cue.ParsePath("max_age"))
	if ageVal.Exists() {
		ageStr, err := ageVal.String()
		if err != nil {
			return &ConfigError{Field: "presence.max_age", Message: err.Error(), Pos: ageVal.Pos()}
		}
		age, err := time.ParseDuration(ageStr)
		if err != nil {
			return &ConfigError{Field: "presence.max_age", Message: err.Error(), Pos: ageVal.Pos()}
		}
		if age <= 0 {
			return &ConfigError{Field: "presence.max_age", Message: "must be positive", Pos: ageVal.Pos()}
		}
		p.Presence.MaxAge = age
	}

	return nil
}

func compileQuorum(v cue.Value, p *Policy) error {
	q := v.LookupPath(cue.ParsePath("quorum"))
	if !q.Exists() {
		return &ConfigError{Field: "quorum", Message: "quorum is required", Pos: v.Pos()}
	}

	nVal := q.LookupPath(cue.ParsePath("required_n"))
	if !nVal.Exists() {
		return &ConfigError{Field: "quorum.required_n", Message: "required_n is required", Pos: q.Pos()}
	}
	n, err := nVal.Int64()
	if err != nil {
		return &ConfigError{Field: "quorum.required_n", Message: err.Error(), Pos: nVal.Pos()}
	}
	if n < 1 {
		return &ConfigError{Field: "quorum.required_n", Message: "must be at least 1", Pos: nVal.Pos()}
	}
	p.Quorum.RequiredN = int(n)
	return nil
}

func compilePromote(v cue.Value, p *Policy) error {
	onlyIf, err := stringList(v, "promote.only_if")
	if err != nil {
		return err
	}
	if len(onlyIf) == 0 {
		return &ConfigError{Field: "promote.only_if", Message: "at least one predicate is required", Pos: v.Pos()}
	}

	seen := map[Predicate]bool{}
	for _, name := range onlyIf {
		pred := Predicate(name)
		if !knownPredicates[pred] {
			return &ConfigError{
				Field:   "promote.only_if",
				Message: fmt.Sprintf("unknown predicate %q", name),
				Pos:     v.Pos(),
			}
		}
		if seen[pred] {
			return &ConfigError{
				Field:   "promote.only_if",
				Message: fmt.Sprintf("duplicate predicate %q", name),
				Pos:     v.Pos(),
			}
		}
		seen[pred] = true
		p.Promote.OnlyIf = append(p.Promote.OnlyIf, pred)
	}
	return nil
}

func stringList(v cue.Value, path string) ([]string, error) {
	listVal := v.LookupPath(cue.ParsePath(path))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, &ConfigError{Field: path, Message: err.Error(), Pos: listVal.Pos()}
	}

	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &ConfigError{Field: path, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}
