// Package result implements the tagged result variants spec.md §9
// prescribes in place of the original implementation's
// exceptions-for-control-flow: every failure the engine produces carries
// an explicit (scope, kind, cause) instead of being a distinguishable
// exception subclass. A single top-level funnel (see cmd/inboxctl) maps
// the scope to exit status and hook invocation; the scope is the only
// semantically load-bearing field.
package result

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Scope is spec.md §7's error taxonomy, ordered from most to least
// severe for the top-level funnel's convenience.
type Scope int

const (
	// Catastrophic aborts the whole process with exit status 1:
	// argument misconfiguration, I/O errors outside per-cycle scope.
	Catastrophic Scope = iota
	// Account skips the remaining folders for this account and
	// continues with the next account: connect/auth failure,
	// capability mismatch, unexpected server abort, socket error.
	Account
	// AccountSoft aborts the current sub-action and any subsequent
	// sub-actions on this account for this cycle (the careful-mode
	// zero-delivery condition, the cross-action delete barrier).
	AccountSoft
	// Folder closes and continues with the next folder: SEARCH/FETCH/
	// STORE rejected by the server for this folder only.
	Folder
	// Ignored is logged and swallowed: hook/notification child-process
	// errors.
	Ignored
)

func (s Scope) String() string {
	switch s {
	case Catastrophic:
		return "catastrophic"
	case Account:
		return "account"
	case AccountSoft:
		return "account-soft"
	case Folder:
		return "folder"
	case Ignored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Error is the tagged result the engine returns instead of raising a
// scoped exception. Kind is a short, stable, machine-matchable tag
// ("connect", "auth", "capability", "search", "fetch-size", "store",
// "conflict", "careful-zero-delivery", "barrier-skip", ...); Cause carries the
// underlying error wrapped with eris for a stack trace at the point the
// Error was constructed.
type Error struct {
	Scope   Scope
	Kind    string
	Account string
	Folder  string
	Cause   error
}

func (e *Error) Error() string {
	loc := e.Account
	if e.Folder != "" {
		loc += "/" + e.Folder
	}
	if loc != "" {
		return fmt.Sprintf("[%s] %s (%s): %v", e.Scope, loc, e.Kind, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Scope, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func wrap(scope Scope, kind string, cause error) *Error {
	return &Error{Scope: scope, Kind: kind, Cause: eris.Wrap(cause, kind)}
}

// New builds a scoped Error, attaching account/folder context via With.
func New(scope Scope, kind string, cause error) *Error {
	return wrap(scope, kind, cause)
}

func (e *Error) With(account, folder string) *Error {
	e.Account = account
	e.Folder = folder
	return e
}

// As reports whether err is a *Error and, if so, returns it. eris-wrapped
// causes still satisfy errors.As because eris errors implement Unwrap.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsScope reports whether err is a *Error of the given scope.
func IsScope(err error, scope Scope) bool {
	e, ok := As(err)
	return ok && e.Scope == scope
}
