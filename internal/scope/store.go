package scope

import (
	"fmt"

	"github.com/boonlang/boon-core/internal/program"
	"github.com/boonlang/boon-core/internal/value"
)

// ConflictError reports a double-commit with non-equal payloads on the
// same slot within one tick (spec §4.S "Failure model", §7.1).
type ConflictError struct {
	Slot SlotKey
	Kind string // "hold" or "link"
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scope: conflicting %s commit at expr %d in same tick", e.Kind, e.Slot.Expr)
}

// Reclaimed describes the result of tearing down a scope subtree: the
// item keys that were freed (for diagnostics) and the set of scopes whose
// cache entries must be evicted (spec §4.S "reclaim").
type Reclaimed struct {
	ItemKeys []value.ItemKey
	Scopes   []*Scope
}

// Store owns the scope tree and the three cell kinds, keyed by slot
// (spec §4.S, component S).
type Store struct {
	root        *Scope
	nextScopeID uint64
	tick        uint64

	pendingHolds []pendingHold
}

type pendingHold struct {
	cell *HoldCell
}

// NewStore creates a store with a fresh root scope.
func NewStore() *Store {
	s := &Store{}
	s.root = &Scope{id: 0}
	return s
}

// Root returns the root scope.
func (s *Store) Root() *Scope { return s.root }

// BeginTick advances the store's notion of the current tick; link cells
// and staged hold writes are scoped to it.
func (s *Store) BeginTick(tick uint64) { s.tick = tick }

// EnterScope returns the existing child of parent for (site, discriminator)
// if one exists, else creates it. This idempotency is what lets
// re-evaluation find the same state across ticks (spec §4.S "enter_scope").
func (s *Store) EnterScope(parent *Scope, site program.SiteID, disc Discriminator) *Scope {
	if parent.children == nil {
		parent.children = make(map[childKey]*Scope)
	}
	key := childKey{site: site, disc: disc}
	if child, ok := parent.children[key]; ok {
		return child
	}
	s.nextScopeID++
	child := &Scope{
		id:     s.nextScopeID,
		parent: parent,
		site:   site,
		disc:   disc,
	}
	parent.children[key] = child
	return child
}

// HoldCell returns (creating if necessary) the hold cell at slot.
func (s *Store) HoldCell(slot SlotKey) *HoldCell {
	sc := slot.Scope
	if sc.holds == nil {
		sc.holds = make(map[program.ExprID]*HoldCell)
	}
	c, ok := sc.holds[slot.Expr]
	if !ok {
		c = &HoldCell{}
		sc.holds[slot.Expr] = c
	}
	return c
}

// LinkCell returns (creating if necessary) the link cell at slot.
func (s *Store) LinkCell(slot SlotKey) *LinkCell {
	sc := slot.Scope
	if sc.links == nil {
		sc.links = make(map[program.ExprID]*LinkCell)
	}
	c, ok := sc.links[slot.Expr]
	if !ok {
		c = &LinkCell{}
		sc.links[slot.Expr] = c
	}
	return c
}

// ListCell returns (creating if necessary) the list cell at slot.
func (s *Store) ListCell(slot SlotKey) *ListCell {
	sc := slot.Scope
	if sc.lists == nil {
		sc.lists = make(map[program.ExprID]*ListCell)
	}
	c, ok := sc.lists[slot.Expr]
	if !ok {
		c = &ListCell{}
		sc.lists[slot.Expr] = c
	}
	return c
}

// StageHoldCommit stages a HOLD write for the current tick, to be applied
// atomically in Commit. Returns a *ConflictError if this slot was already
// staged this tick with an unequal value (spec §7.1).
func (s *Store) StageHoldCommit(slot SlotKey, v value.Value) error {
	c := s.HoldCell(slot)
	if conflict := c.stage(s.tick, v); conflict {
		return &ConflictError{Slot: slot, Kind: "hold"}
	}
	s.pendingHolds = append(s.pendingHolds, pendingHold{cell: c})
	return nil
}

// FireLink binds a link cell's payload for the current tick, tagged with
// seq (its ingest-assigned position among this tick's events — spec §4.S
// "link_fire", §8 "Deterministic LATEST tie-break"). Returns a
// *ConflictError on a same-tick conflicting fire.
func (s *Store) FireLink(slot SlotKey, seq uint64, payload value.Value) error {
	c := s.LinkCell(slot)
	if conflict := c.Fire(s.tick, seq, payload); conflict {
		return &ConflictError{Slot: slot, Kind: "link"}
	}
	return nil
}

// MutateList applies a list diff immediately: list structure is the
// event's own payload, not an internal feedback value, so (unlike HOLD) it
// is visible to the same tick's Propagate phase as soon as it is ingested
// (spec §4.D phase 1).
func (s *Store) MutateList(slot SlotKey, diff ListDiff) value.ItemKey {
	return s.ListCell(slot).Mutate(diff)
}

// Commit applies all staged HOLD writes for the tick, atomically from the
// evaluator's point of view (spec §4.D phase 3).
func (s *Store) Commit() {
	for _, p := range s.pendingHolds {
		p.cell.commit()
	}
	s.pendingHolds = s.pendingHolds[:0]
}

// Reclaim tears down scope and everything under it: cells are freed and
// the scope (and descendants) are detached from the tree so a later
// EnterScope with the same discriminator allocates fresh state rather than
// resurrecting stale cells (spec §4.S "reclaim", invariant 4 in §3).
func (s *Store) Reclaim(sc *Scope) Reclaimed {
	var out Reclaimed
	s.collectReclaim(sc, &out)
	if sc.parent != nil {
		for k, v := range sc.parent.children {
			if v == sc {
				delete(sc.parent.children, k)
				break
			}
		}
	}
	return out
}

func (s *Store) collectReclaim(sc *Scope, out *Reclaimed) {
	if sc.reclaimed {
		return
	}
	sc.reclaimed = true
	out.Scopes = append(out.Scopes, sc)
	if key, ok := sc.ItemKey(); ok {
		out.ItemKeys = append(out.ItemKeys, key)
	}
	for _, child := range sc.children {
		s.collectReclaim(child, out)
	}
	sc.children = nil
	sc.holds = nil
	sc.links = nil
	sc.lists = nil
}
