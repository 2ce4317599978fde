package eval

import (
	"github.com/boonlang/boon-core/internal/program"
	"github.com/boonlang/boon-core/internal/scope"
	"github.com/boonlang/boon-core/internal/value"
)

// evalThen evaluates `trigger |> THEN { body }`: the trigger is evaluated
// for its dependency edges and to decide whether the body should fire at
// all this tick, but the trigger's own value is discarded — THEN's result
// is Body's value, except when the trigger is Skip (nothing new this tick),
// Flush or an error value, which is passed straight through instead (spec
// §4.E "THEN").
func (ev *Evaluator) evalThen(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	t, err := ev.Eval(expr.Trigger, sc)
	if err != nil {
		return nil, err
	}
	if v, ok := propagates(t); ok {
		return v, nil
	}
	return ev.Eval(expr.Body, sc)
}

// evalFlush evaluates FLUSH: if it has a payload, that payload is
// evaluated and wrapped in the Flush sentinel; otherwise it emits a bare
// Flush. Flush is the one value that every other operator — except the
// ones that explicitly document catching it — passes straight through
// (spec §4.E "FLUSH", §7.3).
func (ev *Evaluator) evalFlush(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	if expr.FlushPayload == nil {
		return value.Flush{}, nil
	}
	p, err := ev.Eval(expr.FlushPayload, sc)
	if err != nil {
		return nil, err
	}
	return value.Flush{Payload: p}, nil
}

// matchArm finds the first Arm whose pattern matches v, binding capture
// names into armScope as it goes.
func matchArm(v value.Value, arms []program.Arm, bind func(name string, val value.Value)) (int, bool) {
	for i, arm := range arms {
		if matchPattern(arm.Pattern, v, bind) {
			return i, true
		}
	}
	return 0, false
}

func matchPattern(p program.Pattern, v value.Value, bind func(string, value.Value)) bool {
	switch p.Kind {
	case program.PatternWildcard:
		if p.Capture != "" {
			bind(p.Capture, v)
		}
		return true
	case program.PatternTag:
		tag, ok := v.(value.Tag)
		if !ok || tag.Name != p.TagName {
			return false
		}
		if p.TagPayload != nil && !matchPattern(*p.TagPayload, tag.Payload, bind) {
			return false
		}
		if p.TagCapture != "" {
			bind(p.TagCapture, tag.Payload)
		}
		if p.Capture != "" {
			bind(p.Capture, v)
		}
		return true
	case program.PatternRecord:
		rec, ok := v.(*value.Record)
		if !ok {
			return false
		}
		for i, fname := range p.FieldNames {
			fv, ok := rec.Get(fname)
			if !ok || !matchPattern(p.FieldPatterns[i], fv, bind) {
				return false
			}
		}
		if p.Capture != "" {
			bind(p.Capture, v)
		}
		return true
	case program.PatternList:
		list, ok := v.(*value.List)
		if !ok || list.Len() != len(p.ElemPatterns) {
			return false
		}
		for i, ep := range p.ElemPatterns {
			item, _ := list.At(i)
			if !matchPattern(ep, item.Value, bind) {
				return false
			}
		}
		if p.Capture != "" {
			bind(p.Capture, v)
		}
		return true
	default: // PatternLiteral
		if p.Literal == nil || p.Literal.Op != program.OpLiteral {
			return false
		}
		lit := literalValue(p.Literal.Literal)
		if p.Capture != "" {
			bind(p.Capture, v)
		}
		return lit.Equal(v)
	}
}

// armScopeSite derives a stable SiteID for the child scope a matched arm's
// body runs in. The program format doesn't carry a dedicated SiteID per
// arm, so the match expression's own ExprID (globally unique and stable
// across recompiles, same as any other SiteID) stands in for it.
func armScopeSite(expr *program.Expr) program.SiteID { return program.SiteID(expr.ID) }

// evalWhen evaluates a frozen pattern match: the first tick it matches an
// arm, the arm's body value is latched permanently into a dedicated hold
// cell and returned from then on without ever re-evaluating the scrutinee
// or the body again — hence "frozen" (spec §4.E "WHEN"). This differs from
// WHILE, which keeps tracking the live scrutinee.
func (ev *Evaluator) evalWhen(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	latchSlot := scope.SlotKey{Scope: sc, Expr: expr.ID}
	latch := ev.Store.HoldCell(latchSlot)
	if v, ok := latch.Read(); ok {
		return v, nil
	}

	scrut, err := ev.Eval(expr.Scrutinee, sc)
	if err != nil {
		return nil, err
	}
	if v, ok := propagates(scrut); ok {
		return v, nil
	}

	armScope := ev.Store.EnterScope(sc, armScopeSite(expr), "when")
	idx, matched := matchArm(scrut, expr.Arms, func(name string, val value.Value) {
		bindCapture(ev, armScope, name, val)
	})
	if !matched {
		return value.Skip, nil
	}
	bodyScope := ev.Store.EnterScope(armScope, armScopeSite(expr), idx)
	v, err := ev.Eval(expr.Arms[idx].Body, bodyScope)
	if err != nil {
		return nil, err
	}
	if err := ev.Store.StageHoldCommit(latchSlot, v); err != nil {
		return nil, err
	}
	return v, nil
}

// evalWhile evaluates a flowing pattern match: every tick it re-evaluates
// the scrutinee and finds the currently-matching arm, running only that
// arm's body — so dependency tracking naturally ends up scoped to the
// active arm alone, since non-matching arms are simply never evaluated
// (spec §4.E "WHILE").
func (ev *Evaluator) evalWhile(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	scrut, err := ev.Eval(expr.Scrutinee, sc)
	if err != nil {
		return nil, err
	}
	if v, ok := propagates(scrut); ok {
		return v, nil
	}

	armScope := ev.Store.EnterScope(sc, armScopeSite(expr), "while")
	idx, matched := matchArm(scrut, expr.Arms, func(name string, val value.Value) {
		bindCapture(ev, armScope, name, val)
	})
	if !matched {
		return value.Skip, nil
	}
	bodyScope := ev.Store.EnterScope(armScope, armScopeSite(expr), idx)
	return ev.Eval(expr.Arms[idx].Body, bodyScope)
}

// bindCapture makes a name (a pattern capture, or a list item's
// bound element name) resolvable from within the enclosing body via
// OpOuterRef. Captures are plain per-scope bindings, not retained state,
// so the value itself lives in the evaluator's own capture table rather
// than a hold cell — but it is also recorded into the cache under a
// synthetic per-(scope,name) slot purely so that anything which reads it
// picks up a real dependency edge: otherwise a recompute triggered solely
// by a capture changing (e.g. a list item's value on a later tick) would
// be invisible to the freshness check and the cache would serve a stale
// result (spec §4.C, §3 invariant "no missed update").
func bindCapture(ev *Evaluator, sc *scope.Scope, name string, val value.Value) {
	caps := ev.captures[sc]
	if caps == nil {
		caps = make(map[string]value.Value)
		ev.captures[sc] = caps
	}
	caps[name] = val
	ev.Cache.Store(captureSlot(sc, name), val, ev.stamp(), nil)
}

// evalOuterRef resolves a name to the closest enclosing binding: a pattern
// capture or a name defined in a scope (a HOLD declaration defines its
// HoldName), whichever is nearest going up the scope chain (spec §4.E "Argument scoping and
// closest-name resolution"). If the binding resolves to a slot that is
// currently mid-evaluation (a self-reference, e.g. HOLD's Update referring
// to its own name), the cycle is broken by reading the cell's
// last-committed value directly instead of recursing; otherwise this is an
// ordinary read of another slot's current-tick value via the normal
// cached Eval path (spec §9 self-reference).
func (ev *Evaluator) evalOuterRef(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	for cur := sc; cur != nil; cur = cur.Parent() {
		if caps, ok := ev.captures[cur]; ok {
			if v, ok := caps[expr.RefName]; ok {
				ev.Cache.RecordDep(captureSlot(cur, expr.RefName))
				return v, nil
			}
		}
		if declExpr, ok := cur.OwnBinding(expr.RefName); ok {
			slot := scope.SlotKey{Scope: cur, Expr: declExpr}
			if ev.inFlight[slot] {
				v, _ := ev.Store.HoldCell(slot).Read()
				return v, nil
			}
			declNode, ok := ev.index[declExpr]
			if !ok {
				return nil, &ProgrammerError{Reason: "binding with no backing expression: " + expr.RefName, Expr: expr.ID}
			}
			return ev.Eval(declNode, cur)
		}
	}
	return nil, &ProgrammerError{Reason: "unresolved name: " + expr.RefName, Expr: expr.ID}
}

// evalLinkRef resolves OpLinkRef: the nearest enclosing scope's link cell
// named expr.LinkName, read for the current tick (spec §3 "Cells", §4.E).
func (ev *Evaluator) evalLinkRef(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	declScope, declExpr, ok := sc.Resolve(expr.LinkName)
	if !ok {
		return nil, &ProgrammerError{Reason: "unresolved link: " + expr.LinkName, Expr: expr.ID}
	}
	slot := scope.SlotKey{Scope: declScope, Expr: declExpr}
	return ev.Store.LinkCell(slot).Read(ev.tick), nil
}

// evalHold evaluates HOLD: on the tick it first runs, Init seeds the
// cell; on every subsequent tick, Update runs with the cell's name bound
// to the old (pre-commit) value, and the result is staged as the new
// value — read-old-write-new, the discipline scope.HoldCell enforces
// (spec §4.E "HOLD", §3 "Cells").
func (ev *Evaluator) evalHold(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	slot := scope.SlotKey{Scope: sc, Expr: expr.ID}
	sc.Define(expr.HoldName, expr.ID)
	cell := ev.Store.HoldCell(slot)

	_, hadOld := cell.Read()
	var body *program.Expr
	if !hadOld {
		body = expr.Init
	} else {
		body = expr.Update
	}
	v, err := ev.Eval(body, sc)
	if err != nil {
		return nil, err
	}
	if w, ok := propagates(v); ok {
		if value.IsSkip(w) {
			old, _ := cell.Read()
			return old, nil
		}
		return w, nil
	}
	if err := ev.Store.StageHoldCommit(slot, v); err != nil {
		return nil, err
	}
	return v, nil
}

// evalLatest evaluates LATEST: every arm is evaluated this tick (each
// typically gated by its own THEN, so most produce Skip); among the arms
// that produced a real value, the one whose triggering link fired with the
// highest ingest seq wins; when two arms' triggers fired with the very
// same seq (events the host submitted as simultaneous), the earlier
// -declared arm wins (spec §4.E "LATEST", §8 "Deterministic LATEST
// tie-break"). An arm not gated by a direct link fire (e.g. a constant or
// a compound trigger) falls back to its position in within-tick
// evaluation order, so it still participates deterministically. The
// winning value is staged through the same hold cell discipline as HOLD,
// so on a tick where no arm fires LATEST returns its last committed value.
// LATEST defines no name in its scope, so an arm cannot refer to LATEST's
// own value through OpOuterRef.
func (ev *Evaluator) evalLatest(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	slot := scope.SlotKey{Scope: sc, Expr: expr.ID}
	cell := ev.Store.HoldCell(slot)

	type candidate struct {
		seq uint64
		idx int
		v   value.Value
	}
	var best *candidate
	for i, arm := range expr.LatestArms {
		v, err := ev.Eval(arm, sc)
		if err != nil {
			return nil, err
		}
		if value.IsSkip(v) {
			continue
		}
		seq := ev.armFireSeq(arm, sc)
		if best == nil || seq > best.seq {
			best = &candidate{seq: seq, idx: i, v: v}
		}
	}
	if best == nil {
		old, had := cell.Read()
		if !had {
			return value.Skip, nil
		}
		return old, nil
	}
	if err := ev.Store.StageHoldCommit(slot, best.v); err != nil {
		return nil, err
	}
	return best.v, nil
}

// armFireSeq returns the ingest seq that caused arm to fire this tick, for
// ordering LATEST's arms against each other. When arm is itself a THEN
// whose trigger is a direct LINK read, that link's own FiredSeq is
// authoritative.
// Anything else falls back to ev.nextSeq(), a counter that increases with
// each call within the tick — still deterministic and still later-wins for
// arms with no link of their own to consult, but unable to produce a
// genuine tie (by construction a counter that increases on every call
// among arms declared earlier in the list always assigns them a strictly
// smaller value than arms declared later).
func (ev *Evaluator) armFireSeq(arm *program.Expr, sc *scope.Scope) uint64 {
	if arm.Op == program.OpThen && arm.Trigger != nil && arm.Trigger.Op == program.OpLinkRef {
		if declScope, declExpr, ok := sc.Resolve(arm.Trigger.LinkName); ok {
			slot := scope.SlotKey{Scope: declScope, Expr: declExpr}
			if seq, ok := ev.Store.LinkCell(slot).FiredSeq(ev.tick); ok {
				return seq
			}
		}
	}
	return ev.nextSeq()
}
