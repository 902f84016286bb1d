package rotation

import (
	"errors"
	"slices"
	"testing"
)

func TestState_NewAssignsInSelectionOrder(t *testing.T) {
	state, err := New([]string{"U1", "U2", "U3"})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	var got []string
	for i := 0; i < 4; i++ {
		user, err := state.Assign()
		if err != nil {
			t.Fatalf("assign: %v", err)
		}
		got = append(got, user)
	}
	if !slices.Equal(got, []string{"U1", "U2", "U3", "U1"}) {
		t.Fatalf("unexpected assignment order: %v", got)
	}
}

func TestState_RepeatedSkipsWalkBackward(t *testing.T) {
	state, err := FromQueue([]string{"1", "2", "3", "4"})
	if err != nil {
		t.Fatalf("from queue: %v", err)
	}

	if user, _ := state.Assign(); user != "4" {
		t.Fatalf("expected 4, got %q", user)
	}
	if err := state.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if !slices.Equal(state.Users, []string{"1", "2", "4", "3"}) {
		t.Fatalf("unexpected queue after first skip: %v", state.Users)
	}
	if user, _ := state.Assign(); user != "3" {
		t.Fatalf("expected 3, got %q", user)
	}
	if err := state.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if user, _ := state.Assign(); user != "2" {
		t.Fatalf("expected 2 after second skip, got %q", user)
	}
	if state.SkipDepth != 2 {
		t.Fatalf("expected skip depth 2, got %d", state.SkipDepth)
	}

	// a plain assignment ends the skip streak
	if _, err := state.Assign(); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if state.SkipDepth != 0 {
		t.Fatalf("expected skip depth reset, got %d", state.SkipDepth)
	}
}

func TestState_SkipEmpty(t *testing.T) {
	var state State
	if err := state.Skip(); !errors.Is(err, ErrEmptyRotation) {
		t.Fatalf("expected ErrEmptyRotation, got %v", err)
	}
}

func TestState_SkipRequiresAnAssignment(t *testing.T) {
	state, err := New([]string{"U1", "U2"})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	if _, ok := state.Current(); ok {
		t.Fatalf("expected no current assignee before the first assignment")
	}
	if err := state.Skip(); !errors.Is(err, ErrNothingToSkip) {
		t.Fatalf("expected ErrNothingToSkip, got %v", err)
	}
	if state.SkipDepth != 0 || state.Skipped {
		t.Fatalf("expected refused skip to leave tracking alone, got %#v", state)
	}
	if user, _ := state.Assign(); user != "U1" {
		t.Fatalf("expected U1, got %q", user)
	}
	if current, ok := state.Current(); !ok || current != "U1" {
		t.Fatalf("expected U1 current, got %q", current)
	}
}

func TestState_ReconcileKeepsCurrentAssigneeAtHead(t *testing.T) {
	state, _ := New([]string{"A", "B", "C"})
	if _, err := state.Assign(); err != nil {
		t.Fatalf("assign: %v", err)
	}
	next, err := state.Reconcile([]string{"A", "C"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if current, ok := next.Current(); !ok || current != "A" {
		t.Fatalf("expected A to stay current, got %#v", next)
	}

	fresh, _ := New([]string{"A", "B"})
	reconciled, err := fresh.Reconcile([]string{"A", "B"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if _, ok := reconciled.Current(); ok {
		t.Fatalf("expected no assignee on a never assigned rotation")
	}
}

func TestState_NewRejectsDuplicates(t *testing.T) {
	if _, err := New([]string{"U1", "U1"}); !errors.Is(err, ErrDuplicateParticipant) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestState_ReconcileKeepsOrderAndQueuesNewcomersLast(t *testing.T) {
	state, _ := New([]string{"A", "B", "C"})
	if _, err := state.Assign(); err != nil { // A served
		t.Fatalf("assign: %v", err)
	}

	next, err := state.Reconcile([]string{"A", "C", "D", "E"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !slices.Equal(next.TurnOrder(), []string{"C", "A", "D", "E"}) {
		t.Fatalf("unexpected turn order: %v", next.TurnOrder())
	}
	if next.SkipDepth != 0 || next.Skipped {
		t.Fatalf("expected skip tracking reset")
	}
}

func TestState_CloneIsIndependent(t *testing.T) {
	state, _ := New([]string{"A", "B"})
	clone := state.Clone()
	_, _ = clone.Assign()
	if slices.Equal(state.Users, clone.Users) {
		t.Fatalf("expected clone mutation not to affect original")
	}
}
