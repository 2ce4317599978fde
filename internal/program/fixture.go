package program

import (
	"encoding/json"
	"fmt"
	"io"
)

// The types below mirror Program/Expr/Pattern as a JSON wire format (spec
// §6 "Compiled program" — the engine's input contract, produced by
// whatever front-end compiles Boon source; that compiler is out of scope
// per spec.md §1, so cmd/boonrt reads this format directly as a fixture).

type exprJSON struct {
	ID      int64        `json:"id"`
	Op      string       `json:"op"`
	Literal *literalJSON `json:"literal,omitempty"`

	PipeSource *exprJSON `json:"pipe_source,omitempty"`
	PipeCall   *exprJSON `json:"pipe_call,omitempty"`

	Callee   *symbolJSON `json:"callee,omitempty"`
	Args     []argJSON   `json:"args,omitempty"`
	CallSite int64       `json:"call_site,omitempty"`

	RefName string `json:"ref_name,omitempty"`

	Trigger *exprJSON `json:"trigger,omitempty"`
	Body    *exprJSON `json:"body,omitempty"`

	Scrutinee  *exprJSON   `json:"scrutinee,omitempty"`
	Arms       []armJSON   `json:"arms,omitempty"`
	LatestArms []*exprJSON `json:"latest_arms,omitempty"`

	HoldName string    `json:"hold_name,omitempty"`
	Init     *exprJSON `json:"init,omitempty"`
	Update   *exprJSON `json:"update,omitempty"`

	FlushPayload *exprJSON `json:"flush_payload,omitempty"`

	ListSite int64       `json:"list_site,omitempty"`
	Elems    []*exprJSON `json:"elems,omitempty"`

	ListSource *exprJSON `json:"list_source,omitempty"`
	ItemName   string    `json:"item_name,omitempty"`
	ItemBody   *exprJSON `json:"item_body,omitempty"`
	ItemSite   int64     `json:"item_site,omitempty"`

	RangeFrom *exprJSON `json:"range_from,omitempty"`
	RangeTo   *exprJSON `json:"range_to,omitempty"`

	LinkName string `json:"link_name,omitempty"`
}

type literalJSON struct {
	Kind string  `json:"kind"` // "number" | "boolean" | "text"
	Num  float64 `json:"num,omitempty"`
	Bool bool    `json:"bool,omitempty"`
	Text string  `json:"text,omitempty"`
}

type symbolJSON struct {
	Name    string `json:"name"`
	Builtin bool   `json:"builtin,omitempty"`
}

type argJSON struct {
	Name   string    `json:"name,omitempty"`
	IsPass bool      `json:"is_pass,omitempty"`
	Value  *exprJSON `json:"value"`
}

type patternJSON struct {
	Kind string `json:"kind"` // "wildcard" | "literal" | "tag" | "record" | "list"

	Literal *exprJSON `json:"literal,omitempty"`

	TagName    string       `json:"tag_name,omitempty"`
	TagCapture string       `json:"tag_capture,omitempty"`
	TagPayload *patternJSON `json:"tag_payload,omitempty"`

	FieldNames    []string      `json:"field_names,omitempty"`
	FieldPatterns []patternJSON `json:"field_patterns,omitempty"`

	ElemPatterns []patternJSON `json:"elem_patterns,omitempty"`

	Capture string `json:"capture,omitempty"`
}

type armJSON struct {
	Pattern patternJSON `json:"pattern"`
	Body    *exprJSON   `json:"body"`
}

type functionJSON struct {
	Name   string    `json:"name"`
	Params []string  `json:"params,omitempty"`
	Body   *exprJSON `json:"body"`
}

type programJSON struct {
	Functions []functionJSON `json:"functions,omitempty"`
	Root      *exprJSON      `json:"root"`
}

var opNames = map[string]Op{
	"literal":       OpLiteral,
	"pipe":          OpPipe,
	"call":          OpCall,
	"arg_ref":       OpArgRef,
	"outer_ref":     OpOuterRef,
	"pass":          OpPass,
	"passed":        OpPassed,
	"then":          OpThen,
	"when":          OpWhen,
	"while":         OpWhile,
	"latest":        OpLatest,
	"hold":          OpHold,
	"flush":         OpFlush,
	"list_literal":  OpListLiteral,
	"list_map":      OpListMap,
	"list_retain":   OpListRetain,
	"list_count":    OpListCount,
	"list_every":    OpListEvery,
	"list_any":      OpListAny,
	"list_range":    OpListRange,
	"list_take":     OpListTake,
	"list_skip":     OpListSkip,
	"list_is_empty": OpListIsEmpty,
	"link_ref":      OpLinkRef,
}

var patternKindNames = map[string]PatternKind{
	"wildcard": PatternWildcard,
	"literal":  PatternLiteral,
	"tag":      PatternTag,
	"record":   PatternRecord,
	"list":     PatternList,
}

var literalKindNames = map[string]LiteralKind{
	"number":  LitNumber,
	"boolean": LitBoolean,
	"text":    LitText,
}

// DecodeJSON decodes a Program from its JSON fixture format.
func DecodeJSON(r io.Reader) (*Program, error) {
	var pj programJSON
	if err := json.NewDecoder(r).Decode(&pj); err != nil {
		return nil, err
	}
	prog := &Program{Functions: make(map[string]*Function, len(pj.Functions))}
	for _, fj := range pj.Functions {
		body, err := fromExprJSON(fj.Body)
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", fj.Name, err)
		}
		prog.Functions[fj.Name] = &Function{Name: fj.Name, Params: fj.Params, Body: body}
	}
	root, err := fromExprJSON(pj.Root)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}
	prog.Root = root
	return prog, nil
}

func fromExprJSON(ej *exprJSON) (*Expr, error) {
	if ej == nil {
		return nil, nil
	}
	op, ok := opNames[ej.Op]
	if !ok {
		return nil, fmt.Errorf("unknown op %q at expr %d", ej.Op, ej.ID)
	}
	e := &Expr{ID: ExprID(ej.ID), Op: op}

	if ej.Literal != nil {
		kind, ok := literalKindNames[ej.Literal.Kind]
		if !ok {
			return nil, fmt.Errorf("unknown literal kind %q at expr %d", ej.Literal.Kind, ej.ID)
		}
		e.Literal = LiteralValue{Kind: kind, Num: ej.Literal.Num, Bool: ej.Literal.Bool, Text: ej.Literal.Text}
	}

	var err error
	if e.PipeSource, err = fromExprJSON(ej.PipeSource); err != nil {
		return nil, err
	}
	if e.PipeCall, err = fromExprJSON(ej.PipeCall); err != nil {
		return nil, err
	}
	if ej.Callee != nil {
		e.Callee = Symbol{Name: ej.Callee.Name, Builtin: ej.Callee.Builtin}
	}
	for _, aj := range ej.Args {
		v, err := fromExprJSON(aj.Value)
		if err != nil {
			return nil, err
		}
		e.Args = append(e.Args, Arg{Name: aj.Name, IsPass: aj.IsPass, Value: v})
	}
	e.CallSite = SiteID(ej.CallSite)
	e.RefName = ej.RefName
	if e.Trigger, err = fromExprJSON(ej.Trigger); err != nil {
		return nil, err
	}
	if e.Body, err = fromExprJSON(ej.Body); err != nil {
		return nil, err
	}
	if e.Scrutinee, err = fromExprJSON(ej.Scrutinee); err != nil {
		return nil, err
	}
	for _, aj := range ej.Arms {
		p, err := fromPatternJSON(aj.Pattern)
		if err != nil {
			return nil, err
		}
		body, err := fromExprJSON(aj.Body)
		if err != nil {
			return nil, err
		}
		e.Arms = append(e.Arms, Arm{Pattern: p, Body: body})
	}
	for _, la := range ej.LatestArms {
		v, err := fromExprJSON(la)
		if err != nil {
			return nil, err
		}
		e.LatestArms = append(e.LatestArms, v)
	}
	e.HoldName = ej.HoldName
	if e.Init, err = fromExprJSON(ej.Init); err != nil {
		return nil, err
	}
	if e.Update, err = fromExprJSON(ej.Update); err != nil {
		return nil, err
	}
	if e.FlushPayload, err = fromExprJSON(ej.FlushPayload); err != nil {
		return nil, err
	}
	e.ListSite = SiteID(ej.ListSite)
	for _, el := range ej.Elems {
		v, err := fromExprJSON(el)
		if err != nil {
			return nil, err
		}
		e.Elems = append(e.Elems, v)
	}
	if e.ListSource, err = fromExprJSON(ej.ListSource); err != nil {
		return nil, err
	}
	e.ItemName = ej.ItemName
	if e.ItemBody, err = fromExprJSON(ej.ItemBody); err != nil {
		return nil, err
	}
	e.ItemSite = SiteID(ej.ItemSite)
	if e.RangeFrom, err = fromExprJSON(ej.RangeFrom); err != nil {
		return nil, err
	}
	if e.RangeTo, err = fromExprJSON(ej.RangeTo); err != nil {
		return nil, err
	}
	e.LinkName = ej.LinkName
	return e, nil
}

func fromPatternJSON(pj patternJSON) (Pattern, error) {
	kind, ok := patternKindNames[pj.Kind]
	if !ok {
		return Pattern{}, fmt.Errorf("unknown pattern kind %q", pj.Kind)
	}
	p := Pattern{Kind: kind, TagName: pj.TagName, TagCapture: pj.TagCapture, Capture: pj.Capture, FieldNames: pj.FieldNames}
	lit, err := fromExprJSON(pj.Literal)
	if err != nil {
		return Pattern{}, err
	}
	p.Literal = lit
	if pj.TagPayload != nil {
		tp, err := fromPatternJSON(*pj.TagPayload)
		if err != nil {
			return Pattern{}, err
		}
		p.TagPayload = &tp
	}
	for _, fp := range pj.FieldPatterns {
		sub, err := fromPatternJSON(fp)
		if err != nil {
			return Pattern{}, err
		}
		p.FieldPatterns = append(p.FieldPatterns, sub)
	}
	for _, ep := range pj.ElemPatterns {
		sub, err := fromPatternJSON(ep)
		if err != nil {
			return Pattern{}, err
		}
		p.ElemPatterns = append(p.ElemPatterns, sub)
	}
	return p, nil
}
