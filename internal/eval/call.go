package eval

import (
	"strconv"

	"github.com/boonlang/boon-core/internal/program"
	"github.com/boonlang/boon-core/internal/scope"
	"github.com/boonlang/boon-core/internal/value"
)

// evalPipe evaluates `source |> call(...)` sugar: source is evaluated in
// the caller scope, then threaded into call as its "passed" value (and
// into whichever named argument, if any, is marked IsPass) — spec §4.E
// "Pipe".
func (ev *Evaluator) evalPipe(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	src, err := ev.Eval(expr.PipeSource, sc)
	if err != nil {
		return nil, err
	}
	if v, ok := propagates(src); ok {
		return v, nil
	}
	return ev.evalCall(expr.PipeCall, sc, &src)
}

// evalCall evaluates a function call: builds/reuses the callee scope
// (spec §3 "Scope identity" — one child per (CallSite, discriminator) in
// the caller scope), lazily binds arguments against it, then evaluates the
// callee body there. passed is the piped source value, if this call was
// reached via OpPipe; nil otherwise.
func (ev *Evaluator) evalCall(expr *program.Expr, sc *scope.Scope, passed *value.Value) (value.Value, error) {
	disc := callDiscriminator(expr)
	callee := ev.Store.EnterScope(sc, expr.CallSite, disc)

	cf := &callFrame{
		callerScope: sc,
		argExprs:    make(map[string]*program.Expr, len(expr.Args)),
		argValues:   make(map[string]value.Value, len(expr.Args)),
		argInFlight: make(map[string]bool),
	}
	if passed != nil {
		cf.hasPassed = true
		cf.passed = *passed
	}

	fn, isUser := ev.Prog.Functions[expr.Callee.Name]
	positional := 0
	for _, a := range expr.Args {
		name := a.Name
		if name == "" {
			if isUser && positional < len(fn.Params) {
				name = fn.Params[positional]
			} else {
				// Builtins have no declared Params list, so positional
				// arguments get a synthetic name in call order; builtin.go
				// reads them back out by the same convention.
				name = positionalArgName(positional)
			}
			positional++
		}
		cf.argExprs[name] = a.Value
		if a.IsPass && passed != nil {
			cf.argValues[name] = *passed
		}
	}
	ev.calls[callee] = cf

	if expr.Callee.Builtin {
		return ev.evalBuiltin(expr, callee)
	}
	if !isUser {
		return nil, &ProgrammerError{Reason: "call to undefined function " + expr.Callee.Name, Expr: expr.ID}
	}
	return ev.Eval(fn.Body, callee)
}

// positionalArgName is the synthetic binding name for the n-th positional
// argument to a builtin call (spec §4.E "Function call").
func positionalArgName(n int) string {
	return "arg" + strconv.Itoa(n)
}

// callDiscriminator derives this call's scope discriminator. Calls made
// directly (not from inside a list item / pattern arm) occur at most once
// per enclosing scope per CallSite, so a constant discriminator is enough
// for EnterScope's (site, discriminator) identity to be stable; calls made
// per list item instead key off the item's own scope, not this one.
func callDiscriminator(expr *program.Expr) scope.Discriminator {
	return "call"
}

// argValue resolves name within the call frame owned by callScope,
// evaluating and memoizing its argument expression on first use. Argument
// expressions run in the caller's scope, since that's their lexical
// context; an argument expression that (directly or transitively) refers
// back to its own name is a programmer error (spec §4.E "Argument scoping").
func (ev *Evaluator) argValue(callScope *scope.Scope, name string) (value.Value, error) {
	cf := ev.calls[callScope]
	if cf == nil {
		return nil, &ProgrammerError{Reason: "argument reference outside a call: " + name}
	}
	if v, ok := cf.argValues[name]; ok {
		return v, nil
	}
	aexpr, ok := cf.argExprs[name]
	if !ok {
		return nil, &ProgrammerError{Reason: "undefined argument: " + name}
	}
	if cf.argInFlight[name] {
		return nil, &ProgrammerError{Reason: "argument cycle: " + name}
	}
	cf.argInFlight[name] = true
	v, err := ev.Eval(aexpr, cf.callerScope)
	delete(cf.argInFlight, name)
	if err != nil {
		return nil, err
	}
	cf.argValues[name] = v
	return v, nil
}

// evalArgRef resolves OpArgRef by walking from sc outward to the nearest
// enclosing call scope that has an argument bound to expr.RefName — the
// same closest-name-wins discipline as OpOuterRef (spec §4.E "Argument
// scoping and closest-name resolution").
func (ev *Evaluator) evalArgRef(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	for cur := sc; cur != nil; cur = cur.Parent() {
		if cf, ok := ev.calls[cur]; ok {
			if _, has := cf.argExprs[expr.RefName]; has {
				return ev.argValue(cur, expr.RefName)
			}
			if _, has := cf.argValues[expr.RefName]; has {
				return ev.argValue(cur, expr.RefName)
			}
		}
	}
	return nil, &ProgrammerError{Reason: "unresolved argument reference: " + expr.RefName, Expr: expr.ID}
}

// evalPassed resolves OpPassed: the nearest enclosing call's piped source
// value (spec §4.E "Pass/Passed").
func (ev *Evaluator) evalPassed(expr *program.Expr, sc *scope.Scope) (value.Value, error) {
	for cur := sc; cur != nil; cur = cur.Parent() {
		if cf, ok := ev.calls[cur]; ok && cf.hasPassed {
			return cf.passed, nil
		}
	}
	return nil, &ProgrammerError{Reason: "passed referenced outside a pipe", Expr: expr.ID}
}
