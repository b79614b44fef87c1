package execution

import (
	"errors"
	"fmt"
)

// ErrProgramEnded reports input sent to a program that has already
// terminated. Backends return it so callers can tell a finished run apart
// from a genuine stdin transport failure.
var ErrProgramEnded = errors.New("program already terminated")

// UnsupportedLanguageError reports a request for a language absent from the
// runtime registry.
type UnsupportedLanguageError struct {
	Language Language
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language %q", e.Language)
}

// SessionNotFoundError reports an operation against a session id that is not
// (or no longer) registered.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.SessionID)
}

// DuplicateSessionError reports a create for a session id that already has an
// in-flight run. The existing run is left untouched.
type DuplicateSessionError struct {
	SessionID string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("session %q already exists", e.SessionID)
}

// SandboxError wraps an isolation backend failure unrelated to the user's
// program. Callers see the generic message; the cause is kept for logging.
type SandboxError struct {
	Op  string
	Err error
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("sandbox failure during %s", e.Op)
}

func (e *SandboxError) Unwrap() error {
	return e.Err
}
