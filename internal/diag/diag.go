// Package diag implements the explain/diagnostic surface (spec §6
// "Explain"): given a slot, report its current dependency set and the
// (tick, seq) it last actually changed at, for tooling built on top of the
// engine (a time-travel debugger, an inspector panel).
package diag

import (
	"fmt"

	"github.com/boonlang/boon-core/internal/cache"
	"github.com/boonlang/boon-core/internal/scope"
)

// Report is the explain result for one slot.
type Report struct {
	Slot       scope.SlotKey
	LastChange cache.Stamp
	HasEntry   bool
	Deps       []scope.SlotKey
}

// String renders a Report as a short human-readable trace line, grouped
// the way the teacher's structured logger formats one-line summaries.
func (r Report) String() string {
	if !r.HasEntry {
		return fmt.Sprintf("slot(scope=%d,expr=%d): no cache entry", r.Slot.Scope.ID(), r.Slot.Expr)
	}
	return fmt.Sprintf("slot(scope=%d,expr=%d): last_change=(tick=%d,seq=%d) deps=%d",
		r.Slot.Scope.ID(), r.Slot.Expr, r.LastChange.Tick, r.LastChange.Seq, len(r.Deps))
}

// Explain builds a Report for slot from c.
func Explain(c *cache.Cache, slot scope.SlotKey) Report {
	lc, ok := c.LastChange(slot)
	if !ok {
		return Report{Slot: slot}
	}
	return Report{
		Slot:       slot,
		LastChange: lc,
		HasEntry:   true,
		Deps:       c.Deps(slot),
	}
}

// Chain walks the dependency graph from slot's Report up to depth levels,
// capturing the "why did this change" chain an explain UI would render
// (spec §6 "Explain" — "last-change chain").
func Chain(c *cache.Cache, slot scope.SlotKey, depth int) []Report {
	var out []Report
	seen := make(map[scope.SlotKey]bool)
	var walk func(s scope.SlotKey, d int)
	walk = func(s scope.SlotKey, d int) {
		if d < 0 || seen[s] {
			return
		}
		seen[s] = true
		r := Explain(c, s)
		out = append(out, r)
		for _, dep := range r.Deps {
			walk(dep, d-1)
		}
	}
	walk(slot, depth)
	return out
}
