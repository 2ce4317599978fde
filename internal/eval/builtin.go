package eval

import (
	"time"

	"github.com/boonlang/boon-core/internal/effect"
	"github.com/boonlang/boon-core/internal/program"
	"github.com/boonlang/boon-core/internal/scope"
	"github.com/boonlang/boon-core/internal/value"
)

// evalBuiltin evaluates a call to a built-in symbol. Builtins compute from
// their (already-bound) arguments: arithmetic, comparison, boolean
// combinators, record construction and field access, plus effect-producing
// builtins that append to ev.Effects (spec §4.E "Built-in functions").
// There is no tag-construction builtin. Arguments are read positionally via
// positionalArgName.
func (ev *Evaluator) evalBuiltin(expr *program.Expr, callee *scope.Scope) (value.Value, error) {
	args := func(n int) (value.Value, error) {
		return ev.argValue(callee, positionalArgName(n))
	}
	nums := func(n int) ([]value.Number, value.Value, error) {
		out := make([]value.Number, n)
		for i := 0; i < n; i++ {
			v, err := args(i)
			if err != nil {
				return nil, nil, err
			}
			if w, ok := propagates(v); ok {
				return nil, w, nil
			}
			num, ok := v.(value.Number)
			if !ok {
				return nil, nil, &ProgrammerError{Reason: "expected a number argument", Expr: expr.ID}
			}
			out[i] = num
		}
		return out, nil, nil
	}

	switch expr.Callee.Name {
	case "add":
		n, s, err := nums(2)
		if err != nil || s != nil {
			return s, err
		}
		return n[0] + n[1], nil
	case "sub":
		n, s, err := nums(2)
		if err != nil || s != nil {
			return s, err
		}
		return n[0] - n[1], nil
	case "mul":
		n, s, err := nums(2)
		if err != nil || s != nil {
			return s, err
		}
		return n[0] * n[1], nil
	case "div":
		n, s, err := nums(2)
		if err != nil || s != nil {
			return s, err
		}
		if n[1] == 0 {
			return value.NewError("division_by_zero", "division by zero"), nil
		}
		return n[0] / n[1], nil
	case "mod":
		n, s, err := nums(2)
		if err != nil || s != nil {
			return s, err
		}
		if n[1] == 0 {
			return value.NewError("division_by_zero", "modulo by zero"), nil
		}
		a, b := float64(n[0]), float64(n[1])
		return value.Number(a - b*float64(int64(a/b))), nil
	case "neg":
		n, s, err := nums(1)
		if err != nil || s != nil {
			return s, err
		}
		return -n[0], nil
	case "eq":
		a, err := args(0)
		if err != nil {
			return nil, err
		}
		if w, ok := propagates(a); ok {
			return w, nil
		}
		b, err := args(1)
		if err != nil {
			return nil, err
		}
		if w, ok := propagates(b); ok {
			return w, nil
		}
		return value.Boolean(a.Equal(b)), nil
	case "neq":
		a, err := args(0)
		if err != nil {
			return nil, err
		}
		if w, ok := propagates(a); ok {
			return w, nil
		}
		b, err := args(1)
		if err != nil {
			return nil, err
		}
		if w, ok := propagates(b); ok {
			return w, nil
		}
		return value.Boolean(!a.Equal(b)), nil
	case "lt", "lte", "gt", "gte":
		n, s, err := nums(2)
		if err != nil || s != nil {
			return s, err
		}
		a, b := n[0], n[1]
		switch expr.Callee.Name {
		case "lt":
			return value.Boolean(a < b), nil
		case "lte":
			return value.Boolean(a <= b), nil
		case "gt":
			return value.Boolean(a > b), nil
		default:
			return value.Boolean(a >= b), nil
		}
	case "and":
		a, err := args(0)
		if err != nil {
			return nil, err
		}
		if w, ok := propagates(a); ok {
			return w, nil
		}
		if !truthy(a) {
			return value.Boolean(false), nil
		}
		b, err := args(1)
		if err != nil {
			return nil, err
		}
		if w, ok := propagates(b); ok {
			return w, nil
		}
		return value.Boolean(truthy(b)), nil
	case "or":
		a, err := args(0)
		if err != nil {
			return nil, err
		}
		if w, ok := propagates(a); ok {
			return w, nil
		}
		if truthy(a) {
			return value.Boolean(true), nil
		}
		b, err := args(1)
		if err != nil {
			return nil, err
		}
		if w, ok := propagates(b); ok {
			return w, nil
		}
		return value.Boolean(truthy(b)), nil
	case "not":
		a, err := args(0)
		if err != nil {
			return nil, err
		}
		if w, ok := propagates(a); ok {
			return w, nil
		}
		return value.Boolean(!truthy(a)), nil

	// record/field give programs a way to carry more than one value
	// through a single HOLD cell (spec §8 scenario 6, a Fibonacci HOLD of
	// {prev, curr}) without needing a dedicated record-literal operator:
	// "record" builds one from its call's own named arguments, "field"
	// projects one back out.
	case "record":
		rec := value.NewRecord()
		for _, a := range expr.Args {
			if a.Name == "" {
				continue
			}
			v, err := ev.argValue(callee, a.Name)
			if err != nil {
				return nil, err
			}
			if w, ok := propagates(v); ok {
				return w, nil
			}
			rec = rec.Set(a.Name, v)
		}
		return rec, nil
	case "field":
		v, err := args(0)
		if err != nil {
			return nil, err
		}
		if w, ok := propagates(v); ok {
			return w, nil
		}
		rec, ok := v.(*value.Record)
		if !ok {
			return nil, &ProgrammerError{Reason: "expected a record argument", Expr: expr.ID}
		}
		name, err := ev.textArg(callee, 1)
		if err != nil {
			return nil, err
		}
		fv, ok := rec.Get(name)
		if !ok {
			return value.Skip, nil
		}
		return fv, nil

	// Effect-producing builtins (spec §6 "External interfaces"): each
	// evaluates its arguments, queues an effect.Effect for the
	// Dispatcher's Effects phase to drain, and returns an acknowledgement
	// value rather than anything meaningful to compute further with.
	case "view_patch_set":
		path, err := ev.textArg(callee, 0)
		if err != nil {
			return nil, err
		}
		v, err := args(1)
		if err != nil {
			return nil, err
		}
		if w, ok := propagates(v); ok {
			return w, nil
		}
		ev.Emit(effect.Effect{Kind: effect.KindViewPatch, Patch: effect.PatchSetField, Path: []string{path}, Value: v})
		return value.Boolean(true), nil
	case "timer_start":
		id, err := ev.textArg(callee, 0)
		if err != nil {
			return nil, err
		}
		ms, err := args(1)
		if err != nil {
			return nil, err
		}
		if w, ok := propagates(ms); ok {
			return w, nil
		}
		n, ok := ms.(value.Number)
		if !ok {
			return nil, &ProgrammerError{Reason: "expected a number delay", Expr: expr.ID}
		}
		ev.Emit(effect.Effect{Kind: effect.KindTimerStart, TimerID: id, Delay: time.Duration(float64(n)) * time.Millisecond})
		return value.Boolean(true), nil
	case "timer_cancel":
		id, err := ev.textArg(callee, 0)
		if err != nil {
			return nil, err
		}
		ev.Emit(effect.Effect{Kind: effect.KindTimerCancel, TimerID: id})
		return value.Boolean(true), nil
	case "persist_write":
		key, err := ev.textArg(callee, 0)
		if err != nil {
			return nil, err
		}
		v, err := args(1)
		if err != nil {
			return nil, err
		}
		if w, ok := propagates(v); ok {
			return w, nil
		}
		ev.Emit(effect.Effect{Kind: effect.KindPersistWrite, PersistKey: key, PersistValue: v})
		return value.Boolean(true), nil
	case "persist_read":
		key, err := ev.textArg(callee, 0)
		if err != nil {
			return nil, err
		}
		ev.Emit(effect.Effect{Kind: effect.KindPersistRead, PersistKey: key})
		return value.Boolean(true), nil
	case "focus":
		path, err := ev.textArg(callee, 0)
		if err != nil {
			return nil, err
		}
		ev.Emit(effect.Effect{Kind: effect.KindFocus, TargetPath: []string{path}})
		return value.Boolean(true), nil
	case "clear_text_input":
		path, err := ev.textArg(callee, 0)
		if err != nil {
			return nil, err
		}
		ev.Emit(effect.Effect{Kind: effect.KindClearTextInput, TargetPath: []string{path}})
		return value.Boolean(true), nil
	case "navigate":
		route, err := ev.textArg(callee, 0)
		if err != nil {
			return nil, err
		}
		ev.Emit(effect.Effect{Kind: effect.KindNavigate, Route: route})
		return value.Boolean(true), nil
	case "log":
		msg, err := ev.textArg(callee, 0)
		if err != nil {
			return nil, err
		}
		ev.Emit(effect.Effect{Kind: effect.KindLog, Level: "info", Message: msg})
		return value.Boolean(true), nil
	default:
		return nil, &ProgrammerError{Reason: "call to undefined function " + expr.Callee.Name, Expr: expr.ID}
	}
}

// textArg evaluates the n-th positional argument of a builtin call and
// requires it to be Text (the effect builtins take their path/key/id
// arguments this way).
func (ev *Evaluator) textArg(callee *scope.Scope, n int) (string, error) {
	v, err := ev.argValue(callee, positionalArgName(n))
	if err != nil {
		return "", err
	}
	t, ok := v.(value.Text)
	if !ok {
		return "", &ProgrammerError{Reason: "expected a text argument"}
	}
	return string(t), nil
}
