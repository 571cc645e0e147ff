// Package policy loads the FEED_LOCK policy file and evaluates promotion
// decisions.
//
// The policy file is CUE. It is loaded once per pipeline pass, validated
// against a closed predicate set, and treated as read-only configuration
// from then on. A missing or malformed policy file is a ConfigError: fatal,
// no pass proceeds.
//
// Evaluation is an ordered conjunction over the policy's promote.only_if
// predicates. All failing predicates are reported, not just the first, so
// an operator sees the complete deny reason list in one pass.
package policy
