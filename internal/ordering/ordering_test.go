package ordering

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{ID: int64(i + 1), Position: int64(i + 1)}
	}
	return out
}

func without(all []Entry, id int64) []Entry {
	var out []Entry
	for _, e := range all {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

func positionOf(all []Entry, id int64) int64 {
	for _, e := range all {
		if e.ID == id {
			return e.Position
		}
	}
	return 0
}

func TestPlanMoveWithinScope_UpwardMove(t *testing.T) {
	// Backlog 1,2,3,4: move the item at 4 to 2.
	all := entries(4)
	others := without(all, 4)

	shifts := PlanMoveWithinScope(others, 4, 2)

	assert.ElementsMatch(t, []Shift{
		{ID: 2, From: 2, To: 3},
		{ID: 3, From: 3, To: 4},
	}, shifts)

	after := append(apply(others, shifts), Entry{ID: 4, Position: 2})
	require.NoError(t, Contiguous(after))
	assert.Equal(t, int64(2), positionOf(after, 4))
	assert.Equal(t, int64(3), positionOf(after, 2))
	assert.Equal(t, int64(4), positionOf(after, 3))
}

func TestPlanMoveWithinScope_DownwardMove(t *testing.T) {
	all := entries(5)
	others := without(all, 1)

	shifts := PlanMoveWithinScope(others, 1, 4)

	assert.ElementsMatch(t, []Shift{
		{ID: 2, From: 2, To: 1},
		{ID: 3, From: 3, To: 2},
		{ID: 4, From: 4, To: 3},
	}, shifts)
	after := append(apply(others, shifts), Entry{ID: 1, Position: 4})
	require.NoError(t, Contiguous(after))
}

func TestPlanMoveWithinScope_SamePositionIsNoop(t *testing.T) {
	others := without(entries(3), 2)
	assert.Empty(t, PlanMoveWithinScope(others, 2, 2))
}

func TestPlanInsert(t *testing.T) {
	shifts := PlanInsert(entries(3), 2)
	assert.ElementsMatch(t, []Shift{
		{ID: 2, From: 2, To: 3},
		{ID: 3, From: 3, To: 4},
	}, shifts)

	assert.Empty(t, PlanInsert(entries(3), 4), "appending shifts nothing")
	assert.Empty(t, PlanInsert(nil, 1))
}

func TestPlanRemove(t *testing.T) {
	others := without(entries(4), 2)
	shifts := PlanRemove(others, 2)

	assert.ElementsMatch(t, []Shift{
		{ID: 3, From: 3, To: 2},
		{ID: 4, From: 4, To: 3},
	}, shifts)
	require.NoError(t, Contiguous(apply(others, shifts)))
}

func TestPlanMoveAcrossScopes(t *testing.T) {
	source := entries(3) // ids 1..3
	target := []Entry{{ID: 10, Position: 1}, {ID: 11, Position: 2}}

	shifts := PlanMoveAcrossScopes(without(source, 1), 1, target, 1)

	assert.Equal(t, []Shift{
		{ID: 2, From: 2, To: 1},
		{ID: 3, From: 3, To: 2},
		{ID: 10, From: 1, To: 2},
		{ID: 11, From: 2, To: 3},
	}, shifts, "removal shifts come before insertion shifts")

	require.NoError(t, Contiguous(apply(without(source, 1), shifts)))
	require.NoError(t, Contiguous(append(apply(target, shifts), Entry{ID: 1, Position: 1})))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, int64(4), ClampWithin(4, 0))
	assert.Equal(t, int64(4), ClampWithin(4, 9))
	assert.Equal(t, int64(2), ClampWithin(4, 2))
	assert.Equal(t, int64(1), ClampWithin(0, 3))

	assert.Equal(t, int64(4), ClampInsert(3, 0))
	assert.Equal(t, int64(4), ClampInsert(3, 10))
	assert.Equal(t, int64(1), ClampInsert(3, 1))
	assert.Equal(t, int64(1), ClampInsert(0, -1))
}

func TestContiguous_DetectsGapsAndDuplicates(t *testing.T) {
	assert.NoError(t, Contiguous(nil))
	assert.Error(t, Contiguous([]Entry{{ID: 1, Position: 1}, {ID: 2, Position: 3}}))
	assert.Error(t, Contiguous([]Entry{{ID: 1, Position: 1}, {ID: 2, Position: 1}}))
	assert.Error(t, Contiguous([]Entry{{ID: 1, Position: 0}}))
}

func TestRandomMovesKeepScopesContiguous(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	scopes := [][]Entry{entries(6), nil, nil}
	// Give every scope disjoint ids.
	nextID := int64(100)
	for i := 0; i < 4; i++ {
		scopes[1] = append(scopes[1], Entry{ID: nextID, Position: int64(i + 1)})
		nextID++
	}

	for step := 0; step < 500; step++ {
		src := rng.Intn(len(scopes))
		if len(scopes[src]) == 0 {
			continue
		}
		moved := scopes[src][rng.Intn(len(scopes[src]))]
		dst := rng.Intn(len(scopes))
		srcOthers := without(scopes[src], moved.ID)

		if src == dst {
			to := ClampWithin(int64(len(scopes[src])), rng.Int63n(8))
			shifts := PlanMoveWithinScope(srcOthers, moved.Position, to)
			scopes[src] = append(apply(srcOthers, shifts), Entry{ID: moved.ID, Position: to})
		} else {
			to := ClampInsert(int64(len(scopes[dst])), rng.Int63n(8))
			shifts := PlanMoveAcrossScopes(srcOthers, moved.Position, scopes[dst], to)
			scopes[src] = apply(srcOthers, shifts)
			scopes[dst] = append(apply(scopes[dst], shifts), Entry{ID: moved.ID, Position: to})
		}

		for i, s := range scopes {
			require.NoError(t, Contiguous(s), "step %d scope %d", step, i)
		}
	}
}

// apply returns a copy of entries with the shifts applied, the way the store
// would persist them. Shifts naming unknown identifiers are ignored.
func apply(entries []Entry, shifts []Shift) []Entry {
	idx := make(map[int64]int, len(entries))
	out := make([]Entry, len(entries))
	copy(out, entries)
	for i, e := range out {
		idx[e.ID] = i
	}
	for _, s := range shifts {
		if i, ok := idx[s.ID]; ok {
			out[i].Position = s.To
		}
	}
	return out
}
