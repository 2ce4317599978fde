// Package scope implements the scope tree, slot store, cells, and item-key
// allocator (spec §4.S, component S). It owns the only three mutators in
// the engine: hold commits, link fires, and list mutations. Hold commits
// are staged into a per-tick commit buffer and applied atomically at
// Commit; link fires and list mutations take effect as soon as they are
// made.
//
// The design follows the teacher's Owner hierarchy (parent/child scopes,
// disposal cascading through a subtree, stable per-slot storage) rather
// than re-templating a subgraph per item: the same expression is
// evaluated in different scopes, so external references never go stale
// when new items are added (spec §9 "Per-item state vs dynamic
// re-templating").
package scope

import (
	"github.com/boonlang/boon-core/internal/program"
	"github.com/boonlang/boon-core/internal/value"
)

// Discriminator is either a function-call id (string), a list item key
// (value.ItemKey), or a pattern-arm index (int) — spec §3 "Scope identity".
type Discriminator any

type childKey struct {
	site program.SiteID
	disc Discriminator
}

// Scope is one node of the scope tree: a ScopeId made concrete. Pointer
// identity stands in for "value equality" of the path, because enter_scope
// is idempotent — the same (parent, site, discriminator) always yields the
// same *Scope, for as long as it stays live.
type Scope struct {
	id       uint64
	parent   *Scope
	site     program.SiteID
	disc     Discriminator
	children map[childKey]*Scope

	holds map[program.ExprID]*HoldCell
	links map[program.ExprID]*LinkCell
	lists map[program.ExprID]*ListCell

	// bindings maps a lexical name (HOLD cell name) to the ExprID, at this
	// scope, that defines it. OpOuterRef resolution walks parent scopes
	// looking these up, which is what lets a list item added after the
	// fact still see an outer HOLD cell without any re-wiring (spec §9).
	bindings map[string]program.ExprID

	reclaimed bool
}

// Define registers name as bound, at this scope, to the HOLD cell declared
// by expr. Shadowing: a call argument or HOLD name introduced in an inner
// scope hides an outer binding of the same name for lookups that start
// inside it (spec §4.E "Argument scoping and closest-name resolution").
func (s *Scope) Define(name string, expr program.ExprID) {
	if s.bindings == nil {
		s.bindings = make(map[string]program.ExprID)
	}
	s.bindings[name] = expr
}

// Resolve walks this scope and its ancestors looking for the closest
// binding of name, returning the scope that defines it.
func (s *Scope) Resolve(name string) (*Scope, program.ExprID, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.bindings != nil {
			if expr, ok := cur.bindings[name]; ok {
				return cur, expr, true
			}
		}
	}
	return nil, 0, false
}

// OwnBinding looks up name in this scope only, without walking ancestors.
func (s *Scope) OwnBinding(name string) (program.ExprID, bool) {
	if s.bindings == nil {
		return 0, false
	}
	expr, ok := s.bindings[name]
	return expr, ok
}

// ItemKey returns the stable item key identifying this scope, if it is a
// list-item scope.
func (s *Scope) ItemKey() (value.ItemKey, bool) {
	key, ok := s.disc.(value.ItemKey)
	if !ok {
		return 0, false
	}
	return key, true
}

// ID returns a stable numeric id for diagnostics; it is not part of the
// identity contract (the *Scope pointer is).
func (s *Scope) ID() uint64 { return s.id }

// Parent returns the parent scope, or nil for the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Reclaimed reports whether this scope's subtree has been torn down.
func (s *Scope) Reclaimed() bool { return s.reclaimed }

// SlotKey addresses one cell/cache-entry: (ScopeId, ExprId) — spec §3.
type SlotKey struct {
	Scope *Scope
	Expr  program.ExprID
}
