package eval

import (
	"github.com/boonlang/boon-core/internal/program"
	"github.com/boonlang/boon-core/internal/scope"
	"github.com/boonlang/boon-core/internal/value"
)

// evalListLiteral evaluates a list expression. If it has static Elems
// (`[1, 2, 3]`-style source), it seeds a persistent ListCell once (so each
// position keeps the same item key, hence the same item scope, across
// ticks) and evaluates each element's expression in its own stable item
// scope whenever the literal is recomputed (a literal with Elems goes
// through the cache's ordinary cross-tick freshness check rather than
// re-running every tick), which is what lets a later element keep its identity
// even if an earlier one's value changes (spec §3 "Item key").
//
// If it has no Elems, it is instead the declaration site of an
// externally-mutated list (spec §4.D "list_mutate"): its value just
// reflects whichever keys are currently in the ListCell the dispatcher
// writes to directly, each wrapped as Skip, since a structural list's
// items carry their state in their own item scope rather than in a value
// produced here — consumers (ListMap et al.) bind the item's scope, not
// its placeholder value.
func (ev *Evaluator) evalListLiteral(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	slot := scope.SlotKey{Scope: sc, Expr: expr.ID}
	cell := ev.Store.ListCell(slot)

	if len(expr.Elems) == 0 {
		items := make([]value.Item, 0, len(cell.Keys()))
		for _, k := range cell.Keys() {
			items = append(items, value.Item{Key: k, Value: value.Skip})
		}
		return value.NewList(items...), nil
	}

	keys := cell.Keys()
	if len(keys) != len(expr.Elems) {
		keys = keys[:0]
		for range expr.Elems {
			keys = append(keys, ev.Store.MutateList(slot, scope.ListDiff{Kind: scope.ListInsert, Position: len(keys)}))
		}
	}

	items := make([]value.Item, len(expr.Elems))
	for i, elemExpr := range expr.Elems {
		itemScope := ev.Store.EnterScope(sc, expr.ListSite, keys[i])
		v, err := ev.Eval(elemExpr, itemScope)
		if err != nil {
			return nil, err
		}
		items[i] = value.Item{Key: keys[i], Value: v}
	}
	return value.NewList(items...), nil
}

// sourceList evaluates a list-producing expression and type-asserts its
// result, passing sentinels straight through.
func (ev *Evaluator) sourceList(expr *program.Expr, sc *scope.Scope) (*value.List, value.Value, error) {
	v, err := ev.Eval(expr, sc)
	if err != nil {
		return nil, nil, err
	}
	if w, ok := propagates(v); ok {
		return nil, w, nil
	}
	list, ok := v.(*value.List)
	if !ok {
		return nil, nil, &ProgrammerError{Reason: "expected a list", Expr: expr.ID}
	}
	return list, nil, nil
}

// evalListMap evaluates LIST.map(item => body): each source item is
// visited in its own stable item scope — the same scope line across every
// stage of a map/retain pipeline over the same underlying list, keyed by
// (ItemSite, item key) — with ItemName bound to the item's value for the
// duration of Body's evaluation (spec §4.E "List operations").
func (ev *Evaluator) evalListMap(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	list, sentinel, err := ev.sourceList(expr.ListSource, sc)
	if err != nil {
		return nil, err
	}
	if sentinel != nil {
		return sentinel, nil
	}
	out := make([]value.Item, 0, list.Len())
	for _, it := range list.Items() {
		itemScope := ev.Store.EnterScope(sc, expr.ItemSite, it.Key)
		bindCapture(ev, itemScope, expr.ItemName, it.Value)
		v, err := ev.Eval(expr.ItemBody, itemScope)
		if err != nil {
			return nil, err
		}
		out = append(out, value.Item{Key: it.Key, Value: v})
	}
	return value.NewList(out...), nil
}

// evalListRetain evaluates LIST.retain(item => predicate): items whose
// predicate evaluates truthy are kept, in their original order and with
// their original keys, so removing and re-adding a filter condition never
// changes an item's identity (spec §8 "Filter re-flow").
func (ev *Evaluator) evalListRetain(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	list, sentinel, err := ev.sourceList(expr.ListSource, sc)
	if err != nil {
		return nil, err
	}
	if sentinel != nil {
		return sentinel, nil
	}
	out := make([]value.Item, 0, list.Len())
	for _, it := range list.Items() {
		itemScope := ev.Store.EnterScope(sc, expr.ItemSite, it.Key)
		bindCapture(ev, itemScope, expr.ItemName, it.Value)
		v, err := ev.Eval(expr.ItemBody, itemScope)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			out = append(out, it)
		}
	}
	return value.NewList(out...), nil
}

func truthy(v value.Value) bool {
	b, ok := v.(value.Boolean)
	return ok && bool(b)
}

func (ev *Evaluator) evalListCount(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	list, sentinel, err := ev.sourceList(expr.ListSource, sc)
	if err != nil {
		return nil, err
	}
	if sentinel != nil {
		return sentinel, nil
	}
	return value.Number(list.Len()), nil
}

func (ev *Evaluator) evalListIsEmpty(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	list, sentinel, err := ev.sourceList(expr.ListSource, sc)
	if err != nil {
		return nil, err
	}
	if sentinel != nil {
		return sentinel, nil
	}
	return value.Boolean(list.Len() == 0), nil
}

// evalListEvery/evalListAny share the same shape as map/retain: visit
// every item in its stable scope, apply the predicate, short-circuit.
func (ev *Evaluator) evalListEvery(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	list, sentinel, err := ev.sourceList(expr.ListSource, sc)
	if err != nil {
		return nil, err
	}
	if sentinel != nil {
		return sentinel, nil
	}
	for _, it := range list.Items() {
		itemScope := ev.Store.EnterScope(sc, expr.ItemSite, it.Key)
		bindCapture(ev, itemScope, expr.ItemName, it.Value)
		v, err := ev.Eval(expr.ItemBody, itemScope)
		if err != nil {
			return nil, err
		}
		if !truthy(v) {
			return value.Boolean(false), nil
		}
	}
	return value.Boolean(true), nil
}

func (ev *Evaluator) evalListAny(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	list, sentinel, err := ev.sourceList(expr.ListSource, sc)
	if err != nil {
		return nil, err
	}
	if sentinel != nil {
		return sentinel, nil
	}
	for _, it := range list.Items() {
		itemScope := ev.Store.EnterScope(sc, expr.ItemSite, it.Key)
		bindCapture(ev, itemScope, expr.ItemName, it.Value)
		v, err := ev.Eval(expr.ItemBody, itemScope)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			return value.Boolean(true), nil
		}
	}
	return value.Boolean(false), nil
}

// evalListRange/Take/Skip are structural slices: they preserve the
// original items (and keys) unchanged, just restricting which ones are
// included, so item identity survives a bound changing (spec §4.E "List
// operations").
func (ev *Evaluator) evalListRange(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	from, to := 0, -1
	if expr.RangeFrom != nil {
		v, err := ev.Eval(expr.RangeFrom, sc)
		if err != nil {
			return nil, err
		}
		n, ok := v.(value.Number)
		if !ok {
			return nil, &ProgrammerError{Reason: "expected a number", Expr: expr.ID}
		}
		from = int(n)
	}
	if expr.RangeTo != nil {
		v, err := ev.Eval(expr.RangeTo, sc)
		if err != nil {
			return nil, err
		}
		n, ok := v.(value.Number)
		if !ok {
			return nil, &ProgrammerError{Reason: "expected a number", Expr: expr.ID}
		}
		to = int(n)
	}
	return ev.listSlice(expr, sc, from, to)
}

func (ev *Evaluator) evalListTake(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	n, err := ev.intArg(expr, sc)
	if err != nil {
		return nil, err
	}
	return ev.listSlice(expr, sc, 0, n)
}

func (ev *Evaluator) evalListSkip(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	n, err := ev.intArg(expr, sc)
	if err != nil {
		return nil, err
	}
	return ev.listSlice(expr, sc, n, -1)
}

// intArg evaluates the count argument threaded through ItemBody for
// Take/Skip (the compiled form reuses ItemBody as the single count
// expression, evaluated in the calling scope since it has no per-item
// binding of its own).
func (ev *Evaluator) intArg(expr *program.Expr, sc *scope.Scope) (int, error) {
	v, err := ev.Eval(expr.ItemBody, sc)
	if err != nil {
		return 0, err
	}
	n, ok := v.(value.Number)
	if !ok {
		return 0, &ProgrammerError{Reason: "expected a number", Expr: expr.ID}
	}
	return int(n), nil
}

func (ev *Evaluator) listSlice(expr *program.Expr, sc *scope.Scope, from, to int) (value.Value, error) {
	list, sentinel, err := ev.sourceList(expr.ListSource, sc)
	if err != nil {
		return nil, err
	}
	if sentinel != nil {
		return sentinel, nil
	}
	items := list.Items()
	if from < 0 {
		from = 0
	}
	if from > len(items) {
		from = len(items)
	}
	if to < 0 || to > len(items) {
		to = len(items)
	}
	if to < from {
		to = from
	}
	return value.NewList(items[from:to]...), nil
}
