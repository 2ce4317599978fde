// Package cache implements the evaluation cache (spec §4.C, component C):
// per-slot memoization keyed by (ScopeId, ExprId), with dependency-based
// freshness instead of blanket invalidation. The policy mirrors CUE's
// lazy/memoized evaluator (internal/core/adt eval.go): an entry is reused
// as long as every dependency it read is provably no newer than the entry
// itself, and only recomputed — never blindly dropped — when that can't be
// shown.
package cache

import (
	"github.com/boonlang/boon-core/internal/order"
	"github.com/boonlang/boon-core/internal/scope"
	"github.com/boonlang/boon-core/internal/value"
)

// Stamp is a (tick, seq) logical timestamp. seq breaks ties within a tick
// for LATEST and for ordering within-tick writes (spec §3 "TickSeq").
type Stamp struct {
	Tick uint64
	Seq  uint64
}

// Less reports whether s happened strictly before o.
func (s Stamp) Less(o Stamp) bool {
	return order.TickSeqLess(s.Tick, o.Tick, s.Seq, o.Seq)
}

// entry is one memoized evaluation result (spec §4.C "Cache entry").
type entry struct {
	value      value.Value
	computedAt Stamp
	lastChange Stamp
	deps       []scope.SlotKey
}

// Cache memoizes expression evaluations per slot. It is not safe for
// concurrent use; the engine is single-threaded by design (spec §5).
type Cache struct {
	entries map[scope.SlotKey]*entry

	// frames is the active dependency-recording stack: each in-flight
	// evaluation pushes a frame, records slots it reads into it, and pops
	// it on return, propagating the recorded deps into any enclosing
	// frame too (a dependency of a dependency is a dependency).
	frames []*frame
}

type frame struct {
	deps map[scope.SlotKey]struct{}
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[scope.SlotKey]*entry)}
}

// BeginEval pushes a new dependency-recording frame for an in-flight
// evaluation. Callers must pair this with EndEval.
func (c *Cache) BeginEval() {
	c.frames = append(c.frames, &frame{deps: make(map[scope.SlotKey]struct{})})
}

// RecordDep registers that the evaluation currently in flight read dep.
// It is called by the evaluator every time it pulls another slot's value
// (spec §4.C "Dependency recording").
func (c *Cache) RecordDep(dep scope.SlotKey) {
	if len(c.frames) == 0 {
		return
	}
	c.frames[len(c.frames)-1].deps[dep] = struct{}{}
}

// EndEval pops the current frame, returning the slots it recorded, and
// merges them into the parent frame (if any) since a transitive read is
// still a dependency of the outer evaluation.
func (c *Cache) EndEval() []scope.SlotKey {
	n := len(c.frames)
	f := c.frames[n-1]
	c.frames = c.frames[:n-1]
	deps := make([]scope.SlotKey, 0, len(f.deps))
	for d := range f.deps {
		deps = append(deps, d)
	}
	if n > 1 {
		parent := c.frames[n-2]
		for d := range f.deps {
			parent.deps[d] = struct{}{}
		}
	}
	return deps
}

// Lookup implements the three-branch freshness policy (spec §4.C
// "evaluate"):
//
//  1. no entry for slot -> miss, must compute.
//  2. entry.computedAt == now -> reuse unconditionally (already current
//     this tick; recomputing within one tick would diverge from
//     single-assignment semantics).
//  3. otherwise, walk deps: if every dependency's last-change is no newer
//     than entry.computedAt, the entry is still fresh even though it's
//     from an earlier tick; else it's stale and must be recomputed.
//
// freshOf reports, for a given dependency slot, the Stamp of its most
// recent change — the caller (the evaluator) supplies this since only it
// knows how to resolve a slot to its current change stamp (which may
// itself require recursively consulting the cache or a cell's own
// last-write stamp).
func (c *Cache) Lookup(slot scope.SlotKey, now uint64, freshOf func(scope.SlotKey) Stamp) (value.Value, bool) {
	e, ok := c.entries[slot]
	if !ok {
		return nil, false
	}
	if e.computedAt.Tick == now {
		return e.value, true
	}
	for _, d := range e.deps {
		if e.computedAt.Less(freshOf(d)) {
			return nil, false
		}
	}
	return e.value, true
}

// Store records the result of a (re)computation: v, the Stamp it was
// computed at, and the deps the evaluator recorded while producing it.
// Store itself compares v with the entry's previous value: lastChange
// advances to at only when they differ, and is carried forward unchanged
// when they are equal (spec §4.C "last_change only advances on an actual
// value change, not on every recompute" — this is what makes HOLD's
// read-old/write-new discipline compose with caching instead of causing
// spurious re-propagation every tick).
func (c *Cache) Store(slot scope.SlotKey, v value.Value, at Stamp, deps []scope.SlotKey) {
	prev, had := c.entries[slot]
	lastChange := at
	if had && prev.value.Equal(v) {
		lastChange = prev.lastChange
	}
	c.entries[slot] = &entry{
		value:      v,
		computedAt: at,
		lastChange: lastChange,
		deps:       deps,
	}
}

// LookupSameTick reuses an entry only if it was computed within the
// current tick, else reports a miss regardless of what its recorded deps
// say — the within-tick half of Lookup's policy, without the cross-tick
// "deps unchanged" half. Used for the reactive primitives (HOLD, WHEN,
// WHILE, LATEST, THEN, link reads, externally-mutated list declarations)
// that spec §4.E documents as re-running every tick on principle: their
// dependency set can't be trusted to predict staleness, because the state
// that actually drives them (a LinkCell fire, a ListCell mutation, a HOLD
// cell commit) is written directly by the store, never by another Eval
// call that would otherwise keep the dependency's last-change stamp
// current. Recomputing them every tick and relying only on the same-tick
// branch still prevents a side-effecting body from double-running if the
// same slot is read twice within one tick.
func (c *Cache) LookupSameTick(slot scope.SlotKey, now uint64) (value.Value, bool) {
	e, ok := c.entries[slot]
	if !ok || e.computedAt.Tick != now {
		return nil, false
	}
	return e.value, true
}

// LastChange returns the Stamp at which slot's value last actually
// changed, for use as another entry's freshOf resolver. ok is false if
// slot has never been computed.
func (c *Cache) LastChange(slot scope.SlotKey) (Stamp, bool) {
	e, ok := c.entries[slot]
	if !ok {
		return Stamp{}, false
	}
	return e.lastChange, true
}

// Deps returns the dependency set recorded for slot's current entry, for
// the explain/diagnostic surface (spec §6 "Explain").
func (c *Cache) Deps(slot scope.SlotKey) []scope.SlotKey {
	e, ok := c.entries[slot]
	if !ok {
		return nil
	}
	return append([]scope.SlotKey(nil), e.deps...)
}

// Evict drops every cache entry whose slot belongs to one of the given
// scopes. Called with scope.Reclaimed.Scopes after a subtree teardown, so
// a reclaimed scope's stale memoized values can never be read back in a
// later tick (spec §3 invariant 4, §8 "no cache entry under a removed
// scope is readable in any tick >= t").
func (c *Cache) Evict(scopes []*scope.Scope) {
	if len(scopes) == 0 {
		return
	}
	dead := make(map[*scope.Scope]struct{}, len(scopes))
	for _, sc := range scopes {
		dead[sc] = struct{}{}
	}
	for slot := range c.entries {
		if _, ok := dead[slot.Scope]; ok {
			delete(c.entries, slot)
		}
	}
}
