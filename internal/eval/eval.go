// Package eval implements the evaluator (spec §4.E, component E): a
// demand-pull interpreter over program.Expr that reads and writes through
// the scope store (component S) and memoizes through the cache (component
// C). It is the one component that ties L, S, and C together into the
// reactive semantics the rest of the engine depends on.
//
// Grounded on the teacher's eventloop single-threaded execution model (no
// concurrency inside a tick) and on the cycle-breaking, lazy-memoized
// evaluation style of CUE's internal/core/adt — a slot's computation is
// pushed onto an in-flight set for the duration of its own evaluation, and
// a reference that loops back onto that same slot is resolved from the
// slot's last-committed value rather than recursing, which is exactly how
// HOLD's self-reference terminates. (LATEST binds no name, so it has no
// self-reference to resolve.)
package eval

import (
	"fmt"

	"github.com/boonlang/boon-core/internal/blog"
	"github.com/boonlang/boon-core/internal/cache"
	"github.com/boonlang/boon-core/internal/effect"
	"github.com/boonlang/boon-core/internal/program"
	"github.com/boonlang/boon-core/internal/scope"
	"github.com/boonlang/boon-core/internal/value"
)

// Error is a Go error carrying a code, a message and a source span. The
// evaluator does not produce it: value-level errors (spec §7.2 "Value
// errors") flow through uncaught operators as value.Error values instead.
type Error struct {
	Code    string
	Message string
	Span    program.Span
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// ProgrammerError is a defect in the compiled program itself: a cycle that
// isn't a recognised self-reference, an unresolved name, an arity
// mismatch. These abort the current tick (spec §7.1 "Programmer errors").
type ProgrammerError struct {
	Reason string
	Expr   program.ExprID
}

func (e *ProgrammerError) Error() string {
	return fmt.Sprintf("programmer error at expr %d: %s", e.Expr, e.Reason)
}

// callFrame holds a call's argument expressions (lazily evaluated in the
// caller's scope) plus the piped "passed" value, if any.
type callFrame struct {
	callerScope *scope.Scope
	argExprs    map[string]*program.Expr
	argValues   map[string]value.Value
	argInFlight map[string]bool
	hasPassed   bool
	passed      value.Value
}

// Evaluator interprets a compiled program.Program against a scope.Store
// and cache.Cache, one tick at a time.
type Evaluator struct {
	Prog  *program.Program
	Store *scope.Store
	Cache *cache.Cache
	Log   *blog.Logger

	tick uint64
	seq  uint64

	calls    map[*scope.Scope]*callFrame
	inFlight map[scope.SlotKey]bool
	captures map[*scope.Scope]map[string]value.Value

	// index maps every ExprID in the program to its node, built once at
	// construction, so a name resolved to a declaring ExprID (via
	// scope.Scope bindings) can be evaluated again without every caller
	// needing to thread the original *program.Expr through.
	index map[program.ExprID]*program.Expr

	// Effects accumulates the side effects emitted by effect-producing
	// builtins (view_patch_*, timer_start, persist_write, log, ...)
	// during the current tick's Propagate phase, for the Dispatcher to
	// drain in order during Effects (spec §4.D phase 4, §6).
	Effects []effect.Effect
}

// Emit appends e to the current tick's effect queue.
func (ev *Evaluator) Emit(e effect.Effect) { ev.Effects = append(ev.Effects, e) }

// New creates an Evaluator bound to prog, store, and cache. log may be nil,
// in which case a discarding logger is used.
func New(prog *program.Program, store *scope.Store, c *cache.Cache, log *blog.Logger) *Evaluator {
	if log == nil {
		log = blog.Discard()
	}
	ev := &Evaluator{
		Prog:     prog,
		Store:    store,
		Cache:    c,
		Log:      log,
		calls:    make(map[*scope.Scope]*callFrame),
		inFlight: make(map[scope.SlotKey]bool),
		captures: make(map[*scope.Scope]map[string]value.Value),
		index:    make(map[program.ExprID]*program.Expr),
	}
	if prog != nil {
		ev.indexExpr(prog.Root)
		for _, fn := range prog.Functions {
			ev.indexExpr(fn.Body)
		}
	}
	return ev
}

// indexExpr walks expr and its children, recording every node by ID.
func (ev *Evaluator) indexExpr(expr *program.Expr) {
	if expr == nil {
		return
	}
	if _, seen := ev.index[expr.ID]; seen {
		return
	}
	ev.index[expr.ID] = expr

	ev.indexExpr(expr.PipeSource)
	ev.indexExpr(expr.PipeCall)
	for _, a := range expr.Args {
		ev.indexExpr(a.Value)
	}
	ev.indexExpr(expr.Trigger)
	ev.indexExpr(expr.Body)
	ev.indexExpr(expr.Scrutinee)
	for _, arm := range expr.Arms {
		ev.indexPattern(arm.Pattern)
		ev.indexExpr(arm.Body)
	}
	for _, la := range expr.LatestArms {
		ev.indexExpr(la)
	}
	ev.indexExpr(expr.Init)
	ev.indexExpr(expr.Update)
	ev.indexExpr(expr.FlushPayload)
	for _, e := range expr.Elems {
		ev.indexExpr(e)
	}
	ev.indexExpr(expr.ListSource)
	ev.indexExpr(expr.ItemBody)
	ev.indexExpr(expr.RangeFrom)
	ev.indexExpr(expr.RangeTo)
}

func (ev *Evaluator) indexPattern(p program.Pattern) {
	ev.indexExpr(p.Literal)
	if p.TagPayload != nil {
		ev.indexPattern(*p.TagPayload)
	}
	for _, fp := range p.FieldPatterns {
		ev.indexPattern(fp)
	}
	for _, ep := range p.ElemPatterns {
		ev.indexPattern(ep)
	}
}

// BeginTick advances the evaluator's tick counter and resets the
// within-tick sequence used to order LATEST arm arrivals (spec §3
// "TickSeq").
func (ev *Evaluator) BeginTick(tick uint64) {
	ev.tick = tick
	ev.seq = 0
	ev.Effects = nil
	ev.Store.BeginTick(tick)
}

// ExprByID returns the node for id, if it is a real (non-synthetic)
// expression id known to this program.
func (ev *Evaluator) ExprByID(id program.ExprID) (*program.Expr, bool) {
	e, ok := ev.index[id]
	return e, ok
}

// nextSeq returns the next sequence number within the current tick.
func (ev *Evaluator) nextSeq() uint64 {
	ev.seq++
	return ev.seq
}

func (ev *Evaluator) stamp() cache.Stamp { return cache.Stamp{Tick: ev.tick, Seq: ev.seq} }

// Eval evaluates expr in sc, going through the cache: a fresh entry is
// reused verbatim; a stale or missing one triggers recomputation, with
// dependency recording active for the duration so the new entry's dep set
// reflects exactly what this evaluation actually read (spec §4.C, §4.E).
func (ev *Evaluator) Eval(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	slot := scope.SlotKey{Scope: sc, Expr: expr.ID}
	ev.Cache.RecordDep(slot)

	var (
		v  value.Value
		ok bool
	)
	if alwaysRecomputesPerTick(expr) {
		// HOLD/WHEN/WHILE/LATEST/THEN, link reads, and externally-mutated
		// list declarations can all change from tick to tick with nothing
		// recorded in the dependency graph to prove it: a LinkCell fires or
		// a ListCell's keys shift via Store.MutateList at ingest, and a HOLD
		// cell's self-reference is read directly rather than through Eval —
		// none of that goes through the normal dependency-recording path.
		// The cross-tick half of Lookup's policy ("deps unchanged, so the
		// cached value is still fresh") can't be trusted for any of these;
		// only the same-tick half still applies, so evaluating the same
		// slot twice within one tick doesn't re-run a side-effecting body.
		v, ok = ev.Cache.LookupSameTick(slot, ev.tick)
	} else {
		v, ok = ev.Cache.Lookup(slot, ev.tick, ev.freshOf)
	}
	if ok {
		return v, nil
	}

	if ev.inFlight[slot] {
		// A reference cycle that isn't one of the recognised
		// self-reference form (HOLD's old value, read directly without
		// calling Eval) — a genuine programmer error.
		return nil, &ProgrammerError{Reason: "reference cycle", Expr: expr.ID}
	}
	ev.inFlight[slot] = true
	ev.Cache.BeginEval()

	v, err := ev.evalOp(expr, sc)

	deps := ev.Cache.EndEval()
	delete(ev.inFlight, slot)

	if err != nil {
		return nil, err
	}

	at := ev.stamp()
	ev.Cache.Store(slot, v, at, deps)
	return v, nil
}

// freshOf resolves a dependency slot to the Stamp of its last actual
// change, for the cache's freshness check. A slot with no entry yet is
// treated as maximally fresh (forces recompute of anything depending on
// it, since it has never been observed).
func (ev *Evaluator) freshOf(slot scope.SlotKey) cache.Stamp {
	if lc, ok := ev.Cache.LastChange(slot); ok {
		return lc
	}
	return cache.Stamp{Tick: ev.tick, Seq: ^uint64(0)}
}

// evalOp dispatches on expr.Op. Each case is implemented in the file
// grouping related operators (call.go, reactive.go, list.go).
func (ev *Evaluator) evalOp(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	switch expr.Op {
	case program.OpLiteral:
		return literalValue(expr.Literal), nil
	case program.OpPipe:
		return ev.evalPipe(expr, sc)
	case program.OpCall:
		return ev.evalCall(expr, sc, nil)
	case program.OpArgRef:
		return ev.evalArgRef(expr, sc)
	case program.OpPassed:
		return ev.evalPassed(expr, sc)
	case program.OpOuterRef:
		return ev.evalOuterRef(expr, sc)
	case program.OpThen:
		return ev.evalThen(expr, sc)
	case program.OpWhen:
		return ev.evalWhen(expr, sc)
	case program.OpWhile:
		return ev.evalWhile(expr, sc)
	case program.OpLatest:
		return ev.evalLatest(expr, sc)
	case program.OpHold:
		return ev.evalHold(expr, sc)
	case program.OpFlush:
		return ev.evalFlush(expr, sc)
	case program.OpLinkRef:
		return ev.evalLinkRef(expr, sc)
	case program.OpListLiteral:
		return ev.evalListLiteral(expr, sc)
	case program.OpListMap:
		return ev.evalListMap(expr, sc)
	case program.OpListRetain:
		return ev.evalListRetain(expr, sc)
	case program.OpListCount:
		return ev.evalListCount(expr, sc)
	case program.OpListEvery:
		return ev.evalListEvery(expr, sc)
	case program.OpListAny:
		return ev.evalListAny(expr, sc)
	case program.OpListRange:
		return ev.evalListRange(expr, sc)
	case program.OpListTake:
		return ev.evalListTake(expr, sc)
	case program.OpListSkip:
		return ev.evalListSkip(expr, sc)
	case program.OpListIsEmpty:
		return ev.evalListIsEmpty(expr, sc)
	default:
		return nil, &ProgrammerError{Reason: "unhandled op", Expr: expr.ID}
	}
}

// alwaysRecomputesPerTick reports whether expr is one of the reactive
// primitives documented to re-run every tick on principle, rather than
// only when the cache's recorded dependencies say they've gone stale
// (spec §4.E: THEN re-checks its trigger, WHEN re-checks until it latches,
// WHILE and LATEST re-evaluate their scrutinee/arms, HOLD re-runs Update
// against the old value). Two of these — a link read and an
// externally-mutated list declaration's key set — change state that
// mutates directly through the store (Store.FireLink, Store.MutateList at
// ingest) without ever calling Eval, so no dependent could otherwise learn
// it changed.
func alwaysRecomputesPerTick(expr *program.Expr) bool {
	switch expr.Op {
	case program.OpLinkRef, program.OpHold, program.OpWhen, program.OpWhile, program.OpLatest, program.OpThen:
		return true
	case program.OpListLiteral:
		return len(expr.Elems) == 0
	default:
		return false
	}
}

func literalValue(l program.LiteralValue) value.Value {
	switch l.Kind {
	case program.LitNumber:
		return value.Number(l.Num)
	case program.LitBoolean:
		return value.Boolean(l.Bool)
	case program.LitText:
		return value.Text(l.Text)
	default:
		return value.Text("")
	}
}

// captureSlot derives a synthetic SlotKey used purely as a cache
// dependency handle for a per-scope capture binding (pattern capture, or a
// list item's bound element name) — never a real hold/link/list cell.
// Distinct names within one scope are given distinct ExprIDs via a simple
// string hash; a collision would under-count a dependency rather than
// fabricate one, and the capture names in one scope come from the
// compiled program itself, not untrusted input, so this is an acceptable
// tradeoff against a second synthetic-id namespace.
func captureSlot(sc *scope.Scope, name string) scope.SlotKey {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(name); i++ {
		h ^= uint64(name[i])
		h *= 1099511628211
	}
	return scope.SlotKey{Scope: sc, Expr: program.ExprID(-1 - int64(h&0x7fffffffffffffff))}
}

// propagates reports whether v is Skip, Flush or an error value, which an operator
// without special-case handling must pass straight through untouched
// (spec §7.3 "Flush propagation", §4.L "Skip").
func propagates(v value.Value) (value.Value, bool) {
	if value.IsSkip(v) || value.IsFlush(v) || value.IsError(v) {
		return v, true
	}
	return nil, false
}
