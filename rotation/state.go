package rotation

import "strings"

// State is the persisted rotation of one workflow.
//
// Users is the queue (tail = next up). Assigned is set once the head holds a
// participant that was actually given a turn. SkipDepth counts consecutive
// skips of the current turn and Skipped marks that the last operation was a
// skip, so the next Assign keeps walking back instead of resetting the depth.
type State struct {
	Users     []string `json:"users"`
	Assigned  bool     `json:"assigned,omitempty"`
	SkipDepth int      `json:"skip_depth,omitempty"`
	Skipped   bool     `json:"skipped,omitempty"`
}

// New builds a state from users listed in turn order: users[0] is assigned
// first.
func New(users []string) (State, error) {
	queue := make([]string, 0, len(users))
	for i := len(users) - 1; i >= 0; i-- {
		queue = append(queue, strings.TrimSpace(users[i]))
	}
	if err := Validate(queue); err != nil {
		return State{}, err
	}
	return State{Users: queue}, nil
}

// FromQueue wraps an existing queue without reordering it.
func FromQueue(queue []string) (State, error) {
	q := append([]string(nil), queue...)
	if err := Validate(q); err != nil {
		return State{}, err
	}
	return State{Users: q}, nil
}

func (s *State) Assign() (string, error) {
	if s == nil {
		return "", ErrEmptyRotation
	}
	if !s.Skipped {
		s.SkipDepth = 0
	}
	s.Skipped = false
	user, err := Assign(s.Users)
	if err != nil {
		return "", err
	}
	s.Assigned = true
	return user, nil
}

// Skip rewinds the last assignment and moves the next candidate to the tail.
// Repeated Skip+Assign pairs walk backward one participant at a time. A
// rotation nobody was assigned from yet has nothing to skip.
func (s *State) Skip() error {
	if s == nil || len(s.Users) == 0 {
		return ErrEmptyRotation
	}
	if !s.Assigned {
		return ErrNothingToSkip
	}
	s.SkipDepth++
	s.Skipped = true
	SkipBy(s.Users, s.SkipDepth)
	return nil
}

// Current returns the most recently assigned participant, if any.
func (s State) Current() (string, bool) {
	if len(s.Users) == 0 || !s.Assigned {
		return "", false
	}
	return s.Users[0], true
}

func (s State) Next() (string, bool) {
	return Next(s.Users)
}

// TurnOrder lists users in the order they will be assigned from now on.
func (s State) TurnOrder() []string {
	out := make([]string, 0, len(s.Users))
	for i := len(s.Users) - 1; i >= 0; i-- {
		out = append(out, s.Users[i])
	}
	return out
}

// Reconcile replaces the membership with users. Retained users keep their
// queue positions, removed users are dropped and newcomers join at the head,
// after everyone already queued. Skip tracking is reset; the current
// assignee survives only while it stays at the head.
func (s State) Reconcile(users []string) (State, error) {
	wanted := make(map[string]struct{}, len(users))
	for _, user := range users {
		user = strings.TrimSpace(user)
		if user == "" {
			return State{}, ErrInvalidParticipant
		}
		if _, exists := wanted[user]; exists {
			return State{}, ErrDuplicateParticipant
		}
		wanted[user] = struct{}{}
	}

	retained := make([]string, 0, len(users))
	known := make(map[string]struct{}, len(s.Users))
	for _, user := range s.Users {
		known[user] = struct{}{}
		if _, keep := wanted[user]; keep {
			retained = append(retained, user)
		}
	}
	newcomers := make([]string, 0, len(users))
	for i := len(users) - 1; i >= 0; i-- {
		user := strings.TrimSpace(users[i])
		if _, exists := known[user]; !exists {
			newcomers = append(newcomers, user)
		}
	}
	next, err := FromQueue(append(newcomers, retained...))
	if err != nil {
		return State{}, err
	}
	if current, ok := s.Current(); ok && len(next.Users) > 0 && next.Users[0] == current {
		next.Assigned = true
	}
	return next, nil
}

func (s State) Clone() State {
	s.Users = append([]string(nil), s.Users...)
	return s
}

func (s State) Len() int {
	return len(s.Users)
}
