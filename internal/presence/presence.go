// Package presence implements the live-operator gate.
//
// A pass may proceed only when a start beacon and a human acknowledgment
// both exist and are fresh. Presence is valid for exactly one pipeline
// pass; nothing here caches a prior decision.
package presence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/deadbolt/internal/policy"
)

// BeaconPath is where the operator's start signal is expected, relative to
// the evidence root.
const BeaconPath = "out/START_BEACON.json"

// DefaultAckPath is used when the policy does not name an ack file.
const DefaultAckPath = "out/ACK_HUMAN.json"

// Beacon is the operator's start signal.
type Beacon struct {
	OperatorID string    `json:"operator_id"`
	Timezone   string    `json:"timezone"`
	Timestamp  time.Time `json:"timestamp"`
}

// Ack is the human acknowledgment paired with a beacon.
type Ack struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// Code categorizes presence failures.
type Code string

const (
	CodeMissingBeacon Code = "MISSING_BEACON"
	CodeMissingAck    Code = "MISSING_ACK"
	CodeStalePresence Code = "STALE_PRESENCE"
	CodeMalformed     Code = "MALFORMED_PRESENCE"
)

// Error is a presence gate failure. Fatal to the current pass, fully
// recoverable on the next pass by re-establishing presence.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsPresenceError reports whether err is (or wraps) a presence Error.
func IsPresenceError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

// Gate evaluates operator presence against evidence files.
// Evidence is an fs.FS so tests inject fstest.MapFS instead of real files.
type Gate struct {
	evidence fs.FS
	now      func() time.Time
	logger   *zap.Logger
}

// NewGate builds a presence gate over the given evidence filesystem.
// now may be nil (wall clock); logger may be nil (no-op).
func NewGate(evidence fs.FS, now func() time.Time, logger *zap.Logger) *Gate {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{evidence: evidence, now: now, logger: logger}
}

// Require validates presence for exactly one pass.
//
// Fails with CodeMissingBeacon when no start signal exists (and the policy
// requires one), CodeMissingAck when no acknowledgment exists, and
// CodeStalePresence when either is older than the policy's max_age window.
func (g *Gate) Require(p policy.Policy) error {
	now := g.now().UTC()
	maxAge := p.Presence.MaxAge
	if maxAge <= 0 {
		maxAge = policy.DefaultPresenceMaxAge
	}

	if p.Presence.RequireStartBeacon {
		beacon, err := g.loadBeacon()
		if err != nil {
			return err
		}
		if age := now.Sub(beacon.Timestamp.UTC()); age > maxAge {
			return &Error{
				Code:    CodeStalePresence,
				Message: fmt.Sprintf("start beacon is %s old, window is %s", age.Truncate(time.Second), maxAge),
			}
		}
		g.logger.Debug("beacon fresh",
			zap.String("operator_id", beacon.OperatorID),
			zap.Time("timestamp", beacon.Timestamp))
	}

	ackPath := p.Presence.AckFile
	if ackPath == "" {
		ackPath = DefaultAckPath
	}
	ack, err := g.loadAck(ackPath)
	if err != nil {
		return err
	}
	if age := now.Sub(ack.Timestamp.UTC()); age > maxAge {
		return &Error{
			Code:    CodeStalePresence,
			Message: fmt.Sprintf("acknowledgment is %s old, window is %s", age.Truncate(time.Second), maxAge),
		}
	}

	g.logger.Debug("presence established", zap.String("ack_status", ack.Status))
	return nil
}

func (g *Gate) loadBeacon() (*Beacon, error) {
	data, err := fs.ReadFile(g.evidence, BeaconPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Code: CodeMissingBeacon, Message: "no start beacon found at " + BeaconPath}
	}
	if err != nil {
		return nil, &Error{Code: CodeMissingBeacon, Message: err.Error()}
	}

	var b Beacon
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &Error{Code: CodeMalformed, Message: fmt.Sprintf("beacon: %v", err)}
	}
	if b.Timestamp.IsZero() {
		return nil, &Error{Code: CodeMalformed, Message: "beacon has no timestamp"}
	}
	return &b, nil
}

func (g *Gate) loadAck(path string) (*Ack, error) {
	data, err := fs.ReadFile(g.evidence, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Code: CodeMissingAck, Message: "no acknowledgment found at " + path}
	}
	if err != nil {
		return nil, &Error{Code: CodeMissingAck, Message: err.Error()}
	}

	var a Ack
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, &Error{Code: CodeMalformed, Message: fmt.Sprintf("ack: %v", err)}
	}
	if a.Timestamp.IsZero() {
		return nil, &Error{Code: CodeMalformed, Message: "ack has no timestamp"}
	}
	return &a, nil
}
