// Package domain – assignment lifecycle states.
//
// Status values only ever move forward: pending → sent → viewed → answered.
// The ordering is encoded in rank() so callers can ask "has this assignment
// reached state X" without enumerating the later states by hand.
package domain

// Status is the lifecycle state of an Assignment.
type Status string

const (
	// StatusPending means the assignment exists but nothing has been
	// dispatched to the recipient yet.
	StatusPending Status = "pending"
	// StatusSent means at least one delivery (or a link share) succeeded.
	StatusSent Status = "sent"
	// StatusViewed means the recipient opened the public recording page.
	StatusViewed Status = "viewed"
	// StatusAnswered means the recipient submitted a recording. Terminal.
	StatusAnswered Status = "answered"
)

// rank maps each status to its position in the forward-only lifecycle.
// Unknown values rank below pending so they never satisfy AtLeast.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusViewed:
		return 2
	case StatusAnswered:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is one of the four lifecycle states.
func (s Status) Valid() bool { return s.rank() >= 0 }

// Terminal reports whether s is the final lifecycle state.
func (s Status) Terminal() bool { return s == StatusAnswered }

// AtLeast reports whether s has reached or surpassed other in the lifecycle.
// Used to absorb repeated forward transitions as no-ops.
func (s Status) AtLeast(other Status) bool {
	return s.rank() >= 0 && other.rank() >= 0 && s.rank() >= other.rank()
}
