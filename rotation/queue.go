// Package rotation implements the round-robin turn queue used to pick the
// participant assigned to a workflow step.
//
// A queue is an ordered slice of distinct participant ids. The tail holds the
// participant due next; the head holds the one served most recently. Every
// operation is an in-place permutation, so queue membership never changes.
package rotation

import "errors"

var (
	ErrEmptyRotation        = errors.New("rotation: no participants")
	ErrDuplicateParticipant = errors.New("rotation: duplicate participant")
	ErrInvalidParticipant   = errors.New("rotation: participant id is required")
	ErrNothingToSkip        = errors.New("rotation: no assignment to skip")
)

// Assign removes the tail participant, reinserts it at the head and returns it.
// n consecutive calls on an untouched queue return every participant once and
// restore the original order.
func Assign(q []string) (string, error) {
	if len(q) == 0 {
		return "", ErrEmptyRotation
	}
	last := q[len(q)-1]
	copy(q[1:], q[:len(q)-1])
	q[0] = last
	return last, nil
}

// UndoAssign is the inverse of Assign: the head moves back to the tail.
func UndoAssign(q []string) {
	if len(q) < 2 {
		return
	}
	first := q[0]
	copy(q, q[1:])
	q[len(q)-1] = first
}

func SwapLastTwo(q []string) {
	if len(q) < 2 {
		return
	}
	n := len(q)
	q[n-1], q[n-2] = q[n-2], q[n-1]
}

// Skip rewinds the previous Assign and swaps the next two participants, so the
// following Assign returns the participant that was second in line.
func Skip(q []string) {
	SkipBy(q, 1)
}

// SkipBy rewinds the previous Assign and brings the participant depth places
// behind the rewound one to the tail. depth counts consecutive skips: the
// first skip passes over one participant, the second over two, and so on.
// The rewound participant is never chosen while another one exists; depth
// wraps around the remaining n-1 participants.
func SkipBy(q []string, depth int) {
	n := len(q)
	if n < 2 {
		return
	}
	UndoAssign(q)
	if depth < 1 {
		depth = 1
	}
	depth = (depth-1)%(n-1) + 1
	if depth == 1 {
		SwapLastTwo(q)
		return
	}
	idx := n - 1 - depth
	picked := q[idx]
	copy(q[idx:], q[idx+1:])
	q[n-1] = picked
}

// Next returns the participant the following Assign would return.
func Next(q []string) (string, bool) {
	if len(q) == 0 {
		return "", false
	}
	return q[len(q)-1], true
}

// Validate reports an error when q has blank or duplicate ids.
func Validate(q []string) error {
	seen := make(map[string]struct{}, len(q))
	for _, id := range q {
		if id == "" {
			return ErrInvalidParticipant
		}
		if _, exists := seen[id]; exists {
			return ErrDuplicateParticipant
		}
		seen[id] = struct{}{}
	}
	return nil
}
