package story

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/talewind/internal/resilience"
)

// Kind classifies why a turn failed.
type Kind int

const (
	// KindNone means the turn succeeded.
	KindNone Kind = iota

	// KindTransient is a provider failure that outlived every retry. The
	// player can simply try again.
	KindTransient

	// KindTool means the model never stopped asking for tools within the
	// configured number of rounds.
	KindTool

	// KindInput rejects the utterance itself (blank input). State is untouched.
	KindInput

	// KindFatal is a failure that retrying will not fix (closed orchestrator,
	// provider rejected the request).
	KindFatal

	// KindCancelled means the caller's context ended during the turn.
	KindCancelled
)

// String returns the lower-case kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient"
	case KindTool:
		return "tool"
	case KindInput:
		return "input"
	case KindFatal:
		return "fatal"
	case KindCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the failure of one turn.
type Error struct {
	Kind Kind

	// Op names the step that failed ("llm", "tools", "input").
	Op string

	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("story: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("story: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or [KindNone] for nil. Errors that are not
// a *Error are classified by [classify].
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return classify(err)
}

// classify maps a provider error onto a kind.
func classify(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrClosed), resilience.IsPermanent(err):
		return KindFatal
	default:
		return KindTransient
	}
}

func newError(op string, err error) *Error {
	return &Error{Kind: classify(err), Op: op, Err: err}
}
