// Package ordering computes the position changes that keep every scope's
// positions a contiguous 1..N sequence.
//
// The planners work on the other items of a scope only. They never return a
// shift for the item being inserted, removed or moved; its own position is
// set by the caller in the same transaction that applies the shifts.
package ordering

import (
	"fmt"
	"sort"
)

// Scope identifies a set of items whose positions are numbered together.
// SprintID 0 denotes the project backlog.
type Scope struct {
	ProjectID int64
	SprintID  int64
	Status    string
}

// IsBacklog reports whether the scope has no sprint.
func (s Scope) IsBacklog() bool {
	return s.SprintID == 0
}

// String renders the scope for logs.
func (s Scope) String() string {
	if s.IsBacklog() {
		return fmt.Sprintf("project=%d backlog status=%s", s.ProjectID, s.Status)
	}
	return fmt.Sprintf("project=%d sprint=%d status=%s", s.ProjectID, s.SprintID, s.Status)
}

// Entry is an item's identifier and its current position.
type Entry struct {
	ID       int64
	Position int64
}

// Shift changes one neighbor's position.
type Shift struct {
	ID   int64
	From int64
	To   int64
}

// PlanInsert opens a slot at `at` by moving every item at or after it down one.
func PlanInsert(others []Entry, at int64) []Shift {
	var shifts []Shift
	for _, e := range others {
		if e.Position >= at {
			shifts = append(shifts, Shift{ID: e.ID, From: e.Position, To: e.Position + 1})
		}
	}
	return shifts
}

// PlanRemove closes the gap left at `from`.
func PlanRemove(others []Entry, from int64) []Shift {
	var shifts []Shift
	for _, e := range others {
		if e.Position > from {
			shifts = append(shifts, Shift{ID: e.ID, From: e.Position, To: e.Position - 1})
		}
	}
	return shifts
}

// PlanMoveWithinScope shifts the range between from and to by one so the
// moved item can take position `to`. Moving down decrements (from, to];
// moving up increments [to, from).
func PlanMoveWithinScope(others []Entry, from, to int64) []Shift {
	var shifts []Shift
	switch {
	case from < to:
		for _, e := range others {
			if e.Position > from && e.Position <= to {
				shifts = append(shifts, Shift{ID: e.ID, From: e.Position, To: e.Position - 1})
			}
		}
	case from > to:
		for _, e := range others {
			if e.Position >= to && e.Position < from {
				shifts = append(shifts, Shift{ID: e.ID, From: e.Position, To: e.Position + 1})
			}
		}
	}
	return shifts
}

// PlanMoveAcrossScopes closes the gap in the source scope, then opens the
// slot in the target scope.
func PlanMoveAcrossScopes(fromOthers []Entry, fromPos int64, toOthers []Entry, toPos int64) []Shift {
	shifts := PlanRemove(fromOthers, fromPos)
	return append(shifts, PlanInsert(toOthers, toPos)...)
}

// ClampWithin bounds a target position for a move inside a scope of n items,
// the moved one included. Non-positive targets mean the last slot.
func ClampWithin(n, pos int64) int64 {
	if n < 1 {
		return 1
	}
	if pos <= 0 || pos > n {
		return n
	}
	return pos
}

// ClampInsert bounds a target position for inserting into a scope that
// currently holds n other items. Non-positive targets append.
func ClampInsert(n, pos int64) int64 {
	if pos <= 0 || pos > n+1 {
		return n + 1
	}
	return pos
}

// Contiguous returns an error unless the positions are exactly 1..len(entries).
func Contiguous(entries []Entry) error {
	positions := make([]int64, len(entries))
	for i, e := range entries {
		positions[i] = e.Position
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
	for i, p := range positions {
		if p != int64(i+1) {
			return fmt.Errorf("position %d found where %d expected", p, i+1)
		}
	}
	return nil
}
