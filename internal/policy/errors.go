package policy

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

// ConfigError reports a missing or malformed policy file. Fatal: no pass
// may proceed on a ConfigError. Carries the CUE source position when one
// is available.
type ConfigError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: policy %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("policy %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("policy: %s", e.Message)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
