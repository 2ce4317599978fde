package scope_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boonlang/boon-core/internal/program"
	"github.com/boonlang/boon-core/internal/scope"
	"github.com/boonlang/boon-core/internal/value"
)

func TestEnterScopeIsIdempotent(t *testing.T) {
	st := scope.NewStore()
	a := st.EnterScope(st.Root(), 1, "call-1")
	b := st.EnterScope(st.Root(), 1, "call-1")
	assert.Same(t, a, b, "identical rewrites must share state (spec §3 Scope identity)")

	c := st.EnterScope(st.Root(), 1, "call-2")
	assert.NotSame(t, a, c)
}

func TestHoldCommitDisciplineReadOldWriteNew(t *testing.T) {
	st := scope.NewStore()
	slot := scope.SlotKey{Scope: st.Root(), Expr: 10}

	st.BeginTick(1)
	v, ok := st.HoldCell(slot).Read()
	require.False(t, ok)
	assert.Equal(t, value.Skip, v)

	require.NoError(t, st.StageHoldCommit(slot, value.Number(0)))
	// Still reads as uncommitted mid-tick.
	_, ok = st.HoldCell(slot).Read()
	assert.False(t, ok)

	st.Commit()
	v, ok = st.HoldCell(slot).Read()
	require.True(t, ok)
	assert.Equal(t, value.Number(0), v)

	st.BeginTick(2)
	require.NoError(t, st.StageHoldCommit(slot, value.Number(1)))
	// Mid-tick-2 read still sees tick-1's committed value.
	v, _ = st.HoldCell(slot).Read()
	assert.Equal(t, value.Number(0), v)
	st.Commit()
	v, _ = st.HoldCell(slot).Read()
	assert.Equal(t, value.Number(1), v)
}

func TestHoldCommitConflictOnUnequalPayload(t *testing.T) {
	st := scope.NewStore()
	slot := scope.SlotKey{Scope: st.Root(), Expr: 1}
	st.BeginTick(1)
	require.NoError(t, st.StageHoldCommit(slot, value.Number(1)))
	err := st.StageHoldCommit(slot, value.Number(2))
	require.Error(t, err)

	// Equal payloads collapse to a single commit, no conflict.
	require.NoError(t, st.StageHoldCommit(slot, value.Number(1)))
}

func TestLinkFireScopedToTick(t *testing.T) {
	st := scope.NewStore()
	slot := scope.SlotKey{Scope: st.Root(), Expr: 1}
	st.BeginTick(1)
	require.NoError(t, st.FireLink(slot, 1, value.Text("click")))
	assert.Equal(t, value.Text("click"), st.LinkCell(slot).Read(1))

	st.BeginTick(2)
	assert.Equal(t, value.Skip, st.LinkCell(slot).Read(2))
}

func TestListMutateInsertKeysAreMonotoneAndPermanent(t *testing.T) {
	st := scope.NewStore()
	slot := scope.SlotKey{Scope: st.Root(), Expr: 1}

	k1 := st.MutateList(slot, scope.ListDiff{Kind: scope.ListInsert, Position: 0})
	k2 := st.MutateList(slot, scope.ListDiff{Kind: scope.ListInsert, Position: 1})
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, []value.ItemKey{k1, k2}, st.ListCell(slot).Keys())

	// Reorder preserves keys.
	st.MutateList(slot, scope.ListDiff{Kind: scope.ListMove, Key: k1, NewPosition: 1})
	assert.Equal(t, []value.ItemKey{k2, k1}, st.ListCell(slot).Keys())

	st.MutateList(slot, scope.ListDiff{Kind: scope.ListRemove, Key: k2})
	assert.Equal(t, []value.ItemKey{k1}, st.ListCell(slot).Keys())
}

func TestOuterBindingResolutionSurvivesLateScopeCreation(t *testing.T) {
	st := scope.NewStore()
	listScope := st.EnterScope(st.Root(), 1, "todos")
	listScope.Define("all_completed", program.ExprID(99))

	// Item scopes created at different times still resolve the same
	// outer binding (spec §9 "Per-item state vs dynamic re-templating").
	itemA := st.EnterScope(listScope, 2, value.ItemKey(1))
	itemD := st.EnterScope(listScope, 2, value.ItemKey(4))

	scA, exprA, okA := itemA.Resolve("all_completed")
	scD, exprD, okD := itemD.Resolve("all_completed")
	require.True(t, okA)
	require.True(t, okD)
	assert.Same(t, listScope, scA)
	assert.Same(t, listScope, scD)
	assert.Equal(t, exprA, exprD)
}

func TestShadowingClosestNameWins(t *testing.T) {
	st := scope.NewStore()
	outer := st.EnterScope(st.Root(), 1, "outer")
	outer.Define("x", program.ExprID(1))
	inner := st.EnterScope(outer, 2, "inner")
	inner.Define("x", program.ExprID(2))

	sc, expr, ok := inner.Resolve("x")
	require.True(t, ok)
	assert.Same(t, inner, sc)
	assert.Equal(t, program.ExprID(2), expr)
}

func TestReclaimDetachesSubtreeAndFreesItemKeys(t *testing.T) {
	st := scope.NewStore()
	listScope := st.EnterScope(st.Root(), 1, "todos")
	item := st.EnterScope(listScope, 2, value.ItemKey(7))
	slot := scope.SlotKey{Scope: item, Expr: 1}
	st.BeginTick(1)
	require.NoError(t, st.StageHoldCommit(slot, value.Boolean(true)))
	st.Commit()

	removed := st.Reclaim(item)
	assert.Contains(t, removed.ItemKeys, value.ItemKey(7))
	assert.Contains(t, removed.Scopes, item)
	assert.True(t, item.Reclaimed())

	// Re-entering with the same discriminator allocates a fresh scope, not
	// the reclaimed one, so stale cells never resurrect (invariant 4, §3).
	fresh := st.EnterScope(listScope, 2, value.ItemKey(7))
	assert.NotSame(t, item, fresh)
	freshSlot := scope.SlotKey{Scope: fresh, Expr: 1}
	_, ok := st.HoldCell(freshSlot).Read()
	assert.False(t, ok)
}
