package sink

import (
	"fmt"
	"strings"
)

// ExitPolicy decides what happens to queued audio on shutdown.
type ExitPolicy int

const (
	// ExitAwait lets queued audio finish, bounded by the caller's context.
	ExitAwait ExitPolicy = iota

	// ExitCancel abandons queued and playing audio immediately.
	ExitCancel
)

// String returns the config spelling of the policy.
func (p ExitPolicy) String() string {
	switch p {
	case ExitAwait:
		return "await"
	case ExitCancel:
		return "cancel"
	default:
		return fmt.Sprintf("ExitPolicy(%d)", int(p))
	}
}

// ParseExitPolicy parses "await" or "cancel" (case-insensitive). An empty
// string selects [ExitAwait].
func ParseExitPolicy(s string) (ExitPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "await":
		return ExitAwait, nil
	case "cancel":
		return ExitCancel, nil
	default:
		return ExitAwait, fmt.Errorf("sink: unknown exit policy %q (want await or cancel)", s)
	}
}
