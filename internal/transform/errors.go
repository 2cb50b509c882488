package transform

import (
	"errors"
	"fmt"
)

var (
	// ErrPattern is wrapped by every PatternError.
	ErrPattern = errors.New("invalid pattern")
	// ErrInvalidUTF8 rejects regex input that is not valid UTF-8; the
	// engine would replace bad bytes with U+FFFD.
	ErrInvalidUTF8 = errors.New("text is not valid UTF-8")
)

// PatternError reports a regular expression that failed to compile or to
// evaluate (for example a match timeout).
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() []error { return []error{ErrPattern, e.Err} }

// StyleError reports a malformed style table entry.
type StyleError struct {
	Name   string
	Reason string
}

func (e *StyleError) Error() string {
	return fmt.Sprintf("style %q: %s", e.Name, e.Reason)
}
