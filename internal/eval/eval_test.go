package eval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boonlang/boon-core/internal/cache"
	"github.com/boonlang/boon-core/internal/effect"
	"github.com/boonlang/boon-core/internal/eval"
	"github.com/boonlang/boon-core/internal/program"
	"github.com/boonlang/boon-core/internal/scope"
	"github.com/boonlang/boon-core/internal/value"
)

// newEvaluator builds a fresh store/cache/evaluator triple, ready to
// evaluate a standalone Expr in the root scope. Most tests build a
// program.Program with just the expression under test as Root so Eval can
// be driven directly, mirroring how the Dispatcher drives Prog.Root.
func newEvaluator(root *program.Expr, fns map[string]*program.Function) *eval.Evaluator {
	if fns == nil {
		fns = map[string]*program.Function{}
	}
	prog := &program.Program{Root: root, Functions: fns}
	st := scope.NewStore()
	c := cache.New()
	ev := eval.New(prog, st, c, nil)
	ev.BeginTick(1)
	return ev
}

func numLit(id program.ExprID, n float64) *program.Expr {
	return &program.Expr{ID: id, Op: program.OpLiteral, Literal: program.LiteralValue{Kind: program.LitNumber, Num: n}}
}

func boolLit(id program.ExprID, b bool) *program.Expr {
	return &program.Expr{ID: id, Op: program.OpLiteral, Literal: program.LiteralValue{Kind: program.LitBoolean, Bool: b}}
}

func builtinCall(id program.ExprID, site program.SiteID, name string, args ...*program.Expr) *program.Expr {
	e := &program.Expr{ID: id, Op: program.OpCall, Callee: program.Symbol{Name: name, Builtin: true}, CallSite: site}
	for _, a := range args {
		e.Args = append(e.Args, program.Arg{Value: a})
	}
	return e
}

func TestEvalLiteral(t *testing.T) {
	ev := newEvaluator(numLit(1, 42), nil)
	v, err := ev.Eval(ev.Prog.Root, ev.Store.Root())
	require.NoError(t, err)
	assert.Equal(t, value.Number(42), v)
}

func TestEvalBuiltinArithmetic(t *testing.T) {
	root := builtinCall(3, 100, "add", numLit(1, 1), numLit(2, 2))
	ev := newEvaluator(root, nil)
	v, err := ev.Eval(root, ev.Store.Root())
	require.NoError(t, err)
	assert.Equal(t, value.Number(3), v)
}

func TestEvalBuiltinDivisionByZeroProducesErrorValue(t *testing.T) {
	root := builtinCall(3, 100, "div", numLit(1, 1), numLit(2, 0))
	ev := newEvaluator(root, nil)
	v, err := ev.Eval(root, ev.Store.Root())
	require.NoError(t, err)
	assert.True(t, value.IsError(v), "division by zero propagates as a value error, not a tick abort (spec §7.2)")
}

func TestEvalBuiltinAndShortCircuitsOnFalse(t *testing.T) {
	root := builtinCall(3, 100, "and", boolLit(1, false), boolLit(2, true))
	ev := newEvaluator(root, nil)
	v, err := ev.Eval(root, ev.Store.Root())
	require.NoError(t, err)
	assert.Equal(t, value.Boolean(false), v)
}

func TestEvalThenSkipsWhenTriggerUnfired(t *testing.T) {
	// Trigger reads an OpLinkRef whose link cell never fires; THEN must
	// pass that Skip straight through without evaluating Body.
	triggerExpr := &program.Expr{ID: 1, Op: program.OpLinkRef, LinkName: "clicked"}
	bodyExpr := numLit(2, 99)
	thenExpr := &program.Expr{ID: 3, Op: program.OpThen, Trigger: triggerExpr, Body: bodyExpr}

	ev := newEvaluator(thenExpr, nil)
	root := ev.Store.Root()
	root.Define("clicked", 1) // simulate the compiler declaring this link at root scope

	v, err := ev.Eval(thenExpr, root)
	require.NoError(t, err)
	assert.True(t, value.IsSkip(v))
}

func TestEvalThenFiresWhenTriggerFired(t *testing.T) {
	triggerExpr := &program.Expr{ID: 1, Op: program.OpLinkRef, LinkName: "clicked"}
	bodyExpr := numLit(2, 99)
	thenExpr := &program.Expr{ID: 3, Op: program.OpThen, Trigger: triggerExpr, Body: bodyExpr}

	ev := newEvaluator(thenExpr, nil)
	root := ev.Store.Root()
	root.Define("clicked", 1)
	require.NoError(t, ev.Store.FireLink(scope.SlotKey{Scope: root, Expr: 1}, 1, value.Text("click")))

	v, err := ev.Eval(thenExpr, root)
	require.NoError(t, err)
	assert.Equal(t, value.Number(99), v)
}

func TestEvalWhenLatchesFirstMatchAcrossLaterTicks(t *testing.T) {
	scrutinee := &program.Expr{ID: 1, Op: program.OpLinkRef, LinkName: "state"}
	whenExpr := &program.Expr{
		ID: 2, Op: program.OpWhen, Scrutinee: scrutinee,
		Arms: []program.Arm{
			{Pattern: program.Pattern{Kind: program.PatternLiteral, Literal: boolLit(10, true)}, Body: numLit(11, 1)},
		},
	}
	ev := newEvaluator(whenExpr, nil)
	root := ev.Store.Root()
	root.Define("state", 1)
	slot := scope.SlotKey{Scope: root, Expr: 1}

	// Tick 1: scrutinee doesn't fire -> no match yet, WHEN stays Skip.
	v, err := ev.Eval(whenExpr, root)
	require.NoError(t, err)
	assert.True(t, value.IsSkip(v))

	// Tick 2: scrutinee fires true -> latches.
	ev.BeginTick(2)
	require.NoError(t, ev.Store.FireLink(slot, 1, value.Boolean(true)))
	v, err = ev.Eval(whenExpr, root)
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), v)
	ev.Store.Commit()

	// Tick 3: the scrutinee does not fire (it reads Skip), yet WHEN keeps
	// returning the latched value without re-reading the scrutinee at all.
	ev.BeginTick(3)
	v, err = ev.Eval(whenExpr, root)
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), v)
}

func TestEvalWhileReEvaluatesEveryTick(t *testing.T) {
	scrutinee := &program.Expr{ID: 1, Op: program.OpLinkRef, LinkName: "state"}
	whileExpr := &program.Expr{
		ID: 2, Op: program.OpWhile, Scrutinee: scrutinee,
		Arms: []program.Arm{
			{Pattern: program.Pattern{Kind: program.PatternLiteral, Literal: boolLit(10, true)}, Body: numLit(11, 1)},
			{Pattern: program.Pattern{Kind: program.PatternLiteral, Literal: boolLit(12, false)}, Body: numLit(13, 0)},
		},
	}
	ev := newEvaluator(whileExpr, nil)
	root := ev.Store.Root()
	root.Define("state", 1)
	slot := scope.SlotKey{Scope: root, Expr: 1}

	ev.BeginTick(1)
	require.NoError(t, ev.Store.FireLink(slot, 1, value.Boolean(true)))
	v, err := ev.Eval(whileExpr, root)
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), v)
	ev.Store.Commit()

	ev.BeginTick(2)
	require.NoError(t, ev.Store.FireLink(slot, 1, value.Boolean(false)))
	v, err = ev.Eval(whileExpr, root)
	require.NoError(t, err)
	assert.Equal(t, value.Number(0), v, "WHILE must track the live scrutinee, unlike WHEN")
}

func TestEvalHoldInitThenUpdateWithSelfReference(t *testing.T) {
	// HOLD counter { init: 0, update: counter |> add(1) }
	selfRef := &program.Expr{ID: 10, Op: program.OpOuterRef, RefName: "counter"}
	update := builtinCall(11, 200, "add", selfRef, numLit(12, 1))
	holdExpr := &program.Expr{ID: 1, Op: program.OpHold, HoldName: "counter", Init: numLit(2, 0), Update: update}

	ev := newEvaluator(holdExpr, nil)
	root := ev.Store.Root()

	v, err := ev.Eval(holdExpr, root)
	require.NoError(t, err)
	assert.Equal(t, value.Number(0), v)
	ev.Store.Commit()

	ev.BeginTick(2)
	v, err = ev.Eval(holdExpr, root)
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), v)
	ev.Store.Commit()

	ev.BeginTick(3)
	v, err = ev.Eval(holdExpr, root)
	require.NoError(t, err)
	assert.Equal(t, value.Number(2), v)
}

func TestEvalLatestBreaksTiesByDeclarationOrderAmongSimultaneousArms(t *testing.T) {
	// Two arms, each gated by its own LINK. Both links fire in the same
	// tick with the very same ingest seq (events the host merged as
	// simultaneous) -> the first-declared arm must win (spec §8
	// "Deterministic LATEST tie-break").
	triggerA := &program.Expr{ID: 11, Op: program.OpLinkRef, LinkName: "a"}
	triggerB := &program.Expr{ID: 14, Op: program.OpLinkRef, LinkName: "b"}
	armA := &program.Expr{ID: 10, Op: program.OpThen, Trigger: triggerA, Body: numLit(12, 100)}
	armB := &program.Expr{ID: 13, Op: program.OpThen, Trigger: triggerB, Body: numLit(15, 200)}
	latestExpr := &program.Expr{ID: 1, Op: program.OpLatest, LatestArms: []*program.Expr{armA, armB}}

	ev := newEvaluator(latestExpr, nil)
	root := ev.Store.Root()
	root.Define("a", 11)
	root.Define("b", 14)

	require.NoError(t, ev.Store.FireLink(scope.SlotKey{Scope: root, Expr: 11}, 7, value.Boolean(true)))
	require.NoError(t, ev.Store.FireLink(scope.SlotKey{Scope: root, Expr: 14}, 7, value.Boolean(true)))

	v, err := ev.Eval(latestExpr, root)
	require.NoError(t, err)
	assert.Equal(t, value.Number(100), v, "first-declared arm wins a genuine same-seq tie")
}

func TestEvalLatestPicksHigherSeqArmWhenNotTied(t *testing.T) {
	// Same shape, but b's link fired with a strictly later seq -> b wins
	// even though it is declared second.
	triggerA := &program.Expr{ID: 11, Op: program.OpLinkRef, LinkName: "a"}
	triggerB := &program.Expr{ID: 14, Op: program.OpLinkRef, LinkName: "b"}
	armA := &program.Expr{ID: 10, Op: program.OpThen, Trigger: triggerA, Body: numLit(12, 100)}
	armB := &program.Expr{ID: 13, Op: program.OpThen, Trigger: triggerB, Body: numLit(15, 200)}
	latestExpr := &program.Expr{ID: 1, Op: program.OpLatest, LatestArms: []*program.Expr{armA, armB}}

	ev := newEvaluator(latestExpr, nil)
	root := ev.Store.Root()
	root.Define("a", 11)
	root.Define("b", 14)

	require.NoError(t, ev.Store.FireLink(scope.SlotKey{Scope: root, Expr: 11}, 1, value.Boolean(true)))
	require.NoError(t, ev.Store.FireLink(scope.SlotKey{Scope: root, Expr: 14}, 2, value.Boolean(true)))

	v, err := ev.Eval(latestExpr, root)
	require.NoError(t, err)
	assert.Equal(t, value.Number(200), v, "strictly later seq wins regardless of declaration order")
}

func TestEvalLatestIsSkipWhenNoArmHasEverFired(t *testing.T) {
	triggerSkip := &program.Expr{ID: 1, Op: program.OpLinkRef, LinkName: "never"}
	arm := &program.Expr{ID: 10, Op: program.OpThen, Trigger: triggerSkip, Body: numLit(11, 5)}
	latestExpr := &program.Expr{ID: 2, Op: program.OpLatest, LatestArms: []*program.Expr{arm}}

	ev := newEvaluator(latestExpr, nil)
	root := ev.Store.Root()
	root.Define("never", 1)

	v, err := ev.Eval(latestExpr, root)
	require.NoError(t, err)
	assert.True(t, value.IsSkip(v), "no arm has ever fired: nothing to hold yet")
}

func TestEvalCallWithUserFunctionAndNamedArgs(t *testing.T) {
	// fn double(x) = x |> add(x); root = double(x: 21)
	paramRef := &program.Expr{ID: 1, Op: program.OpArgRef, RefName: "x"}
	body := builtinCall(2, 50, "add", paramRef, paramRef)
	fn := &program.Function{Name: "double", Params: []string{"x"}, Body: body}

	call := &program.Expr{
		ID: 3, Op: program.OpCall, CallSite: 99,
		Callee: program.Symbol{Name: "double"},
		Args:   []program.Arg{{Name: "x", Value: numLit(4, 21)}},
	}
	ev := newEvaluator(call, map[string]*program.Function{"double": fn})
	v, err := ev.Eval(call, ev.Store.Root())
	require.NoError(t, err)
	assert.Equal(t, value.Number(42), v)
}

func TestEvalPipeThreadsSourceAsPassedArgument(t *testing.T) {
	// fn inc(n) = n |> add(1); root = 41 |> inc()
	paramRef := &program.Expr{ID: 1, Op: program.OpArgRef, RefName: "n"}
	body := builtinCall(2, 50, "add", paramRef, numLit(3, 1))
	fn := &program.Function{Name: "inc", Params: []string{"n"}, Body: body}

	call := &program.Expr{ID: 4, Op: program.OpCall, CallSite: 99, Callee: program.Symbol{Name: "inc"}, Args: []program.Arg{{Name: "n", IsPass: true}}}
	pipe := &program.Expr{ID: 5, Op: program.OpPipe, PipeSource: numLit(6, 41), PipeCall: call}

	ev := newEvaluator(pipe, map[string]*program.Function{"inc": fn})
	v, err := ev.Eval(pipe, ev.Store.Root())
	require.NoError(t, err)
	assert.Equal(t, value.Number(42), v)
}

func TestEvalListMapAndRetainPreserveItemKeys(t *testing.T) {
	// [10, 20, 30] |> map(x => x |> add(1)) |> retain(x => x |> gt(20))
	listExpr := &program.Expr{ID: 1, Op: program.OpListLiteral, ListSite: 10, Elems: []*program.Expr{numLit(2, 10), numLit(3, 20), numLit(4, 30)}}
	mapRef := &program.Expr{ID: 5, Op: program.OpOuterRef, RefName: "x"}
	mapBody := builtinCall(6, 60, "add", mapRef, numLit(7, 1))
	mapExpr := &program.Expr{ID: 8, Op: program.OpListMap, ListSource: listExpr, ItemName: "x", ItemBody: mapBody, ItemSite: 11}

	retainRef := &program.Expr{ID: 9, Op: program.OpOuterRef, RefName: "x"}
	retainBody := builtinCall(12, 61, "gt", retainRef, numLit(13, 20))
	retainExpr := &program.Expr{ID: 14, Op: program.OpListRetain, ListSource: mapExpr, ItemName: "x", ItemBody: retainBody, ItemSite: 12}

	ev := newEvaluator(retainExpr, nil)
	v, err := ev.Eval(retainExpr, ev.Store.Root())
	require.NoError(t, err)

	list, ok := v.(*value.List)
	require.True(t, ok)
	require.Equal(t, 2, list.Len())
	it0, _ := list.At(0)
	it1, _ := list.At(1)
	assert.Equal(t, value.Number(21), it0.Value)
	assert.Equal(t, value.Number(31), it1.Value)
	assert.Equal(t, value.ItemKey(2), it0.Key)
	assert.Equal(t, value.ItemKey(3), it1.Key)
}

func TestEvalListCountAndIsEmpty(t *testing.T) {
	listExpr := &program.Expr{ID: 1, Op: program.OpListLiteral, ListSite: 10, Elems: []*program.Expr{numLit(2, 1), numLit(3, 2)}}
	countExpr := &program.Expr{ID: 4, Op: program.OpListCount, ListSource: listExpr}
	emptyExpr := &program.Expr{ID: 5, Op: program.OpListIsEmpty, ListSource: listExpr}

	ev := newEvaluator(countExpr, nil)
	root := ev.Store.Root()
	v, err := ev.Eval(countExpr, root)
	require.NoError(t, err)
	assert.Equal(t, value.Number(2), v)

	v, err = ev.Eval(emptyExpr, root)
	require.NoError(t, err)
	assert.Equal(t, value.Boolean(false), v)
}

func TestEvalBuiltinTimerStartEmitsEffect(t *testing.T) {
	root := builtinCall(3, 100, "timer_start", &program.Expr{ID: 1, Op: program.OpLiteral, Literal: program.LiteralValue{Kind: program.LitText, Text: "t1"}}, numLit(2, 500))
	ev := newEvaluator(root, nil)

	v, err := ev.Eval(root, ev.Store.Root())
	require.NoError(t, err)
	assert.Equal(t, value.Boolean(true), v)

	require.Len(t, ev.Effects, 1)
	e := ev.Effects[0]
	assert.Equal(t, effect.KindTimerStart, e.Kind)
	assert.Equal(t, "t1", e.TimerID)
}

func TestEvalRecordAndFieldRoundTrip(t *testing.T) {
	// record(prev: 1, curr: 2) |> field("curr") == 2
	rec := &program.Expr{
		ID: 1, Op: program.OpCall, CallSite: 50,
		Callee: program.Symbol{Name: "record", Builtin: true},
		Args: []program.Arg{
			{Name: "prev", Value: numLit(2, 1)},
			{Name: "curr", Value: numLit(3, 2)},
		},
	}
	fieldName := &program.Expr{ID: 4, Op: program.OpLiteral, Literal: program.LiteralValue{Kind: program.LitText, Text: "curr"}}
	proj := builtinCall(5, 51, "field", rec, fieldName)

	ev := newEvaluator(proj, nil)
	v, err := ev.Eval(proj, ev.Store.Root())
	require.NoError(t, err)
	assert.Equal(t, value.Number(2), v)
}

func TestEvalFieldOnMissingNameIsSkip(t *testing.T) {
	rec := &program.Expr{
		ID: 1, Op: program.OpCall, CallSite: 50,
		Callee: program.Symbol{Name: "record", Builtin: true},
		Args:   []program.Arg{{Name: "prev", Value: numLit(2, 1)}},
	}
	fieldName := &program.Expr{ID: 4, Op: program.OpLiteral, Literal: program.LiteralValue{Kind: program.LitText, Text: "curr"}}
	proj := builtinCall(5, 51, "field", rec, fieldName)

	ev := newEvaluator(proj, nil)
	v, err := ev.Eval(proj, ev.Store.Root())
	require.NoError(t, err)
	assert.True(t, value.IsSkip(v))
}

func TestEvalUnresolvedOuterRefIsProgrammerError(t *testing.T) {
	root := &program.Expr{ID: 1, Op: program.OpOuterRef, RefName: "nope"}
	ev := newEvaluator(root, nil)
	_, err := ev.Eval(root, ev.Store.Root())
	require.Error(t, err)
	var perr *eval.ProgrammerError
	assert.ErrorAs(t, err, &perr)
}
