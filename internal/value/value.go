// Package value implements the Boon value model: the tagged data that
// flows through the reactive graph (spec §4.L).
//
// Values are immutable once produced within a tick. Equality is defined
// per-kind: Numbers compare bitwise (so NaN equals itself), Text compares
// as a codepoint sequence, Records compare recursively field-by-field, and
// Lists compare item-key-wise so that a reorder is distinguishable from a
// no-op.
package value

import (
	"math"
	"sort"
	"strconv"
)

// Kind tags the variant of a Value.
type Kind byte

const (
	KindNumber Kind = iota
	KindBoolean
	KindText
	KindTag
	KindRecord
	KindList
	KindLink
	KindSkip
	KindFlush
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "Number"
	case KindBoolean:
		return "Boolean"
	case KindText:
		return "Text"
	case KindTag:
		return "Tag"
	case KindRecord:
		return "Record"
	case KindList:
		return "List"
	case KindLink:
		return "Link"
	case KindSkip:
		return "Skip"
	case KindFlush:
		return "Flush"
	default:
		return "Unknown"
	}
}

// Value is the interface every Boon runtime datum implements.
type Value interface {
	Kind() Kind
	String() string
	Equal(Value) bool
}

// Number is a double-precision float. Equality is bitwise, so NaN equals
// itself, unlike Go's native float64 ==.
type Number float64

func (n Number) Kind() Kind   { return KindNumber }
func (n Number) String() string {
	return formatFloat(float64(n))
}
func (n Number) Equal(v Value) bool {
	other, ok := v.(Number)
	if !ok {
		return false
	}
	return math.Float64bits(float64(n)) == math.Float64bits(float64(other))
}

// Boolean is a true/false value.
type Boolean bool

func (b Boolean) Kind() Kind { return KindBoolean }
func (b Boolean) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (b Boolean) Equal(v Value) bool {
	other, ok := v.(Boolean)
	return ok && b == other
}

// Text is a codepoint-sequence string.
type Text string

func (t Text) Kind() Kind     { return KindText }
func (t Text) String() string { return string(t) }
func (t Text) Equal(v Value) bool {
	other, ok := v.(Text)
	return ok && t == other
}

// Tag is a named atom optionally carrying a payload (e.g. a WHEN arm's
// matched constructor).
type Tag struct {
	Name    string
	Payload Value // nil if the tag carries no payload
}

func NewTag(name string, payload Value) Tag { return Tag{Name: name, Payload: payload} }

func (t Tag) Kind() Kind { return KindTag }
func (t Tag) String() string {
	if t.Payload == nil {
		return "#" + t.Name
	}
	return "#" + t.Name + "(" + t.Payload.String() + ")"
}
func (t Tag) Equal(v Value) bool {
	other, ok := v.(Tag)
	if !ok || t.Name != other.Name {
		return false
	}
	if (t.Payload == nil) != (other.Payload == nil) {
		return false
	}
	if t.Payload == nil {
		return true
	}
	return t.Payload.Equal(other.Payload)
}

// Record maps field names to values; field order is irrelevant to identity.
type Record struct {
	fields map[string]Value
}

func NewRecord() *Record { return &Record{fields: make(map[string]Value)} }

func NewRecordFrom(m map[string]Value) *Record {
	r := NewRecord()
	for k, v := range m {
		r.fields[k] = v
	}
	return r
}

func (r *Record) Kind() Kind { return KindRecord }

func (r *Record) Get(field string) (Value, bool) {
	v, ok := r.fields[field]
	return v, ok
}

func (r *Record) Set(field string, v Value) *Record {
	out := NewRecord()
	for k, existing := range r.fields {
		out.fields[k] = existing
	}
	out.fields[field] = v
	return out
}

func (r *Record) Fields() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Record) Len() int { return len(r.fields) }

func (r *Record) String() string {
	keys := r.Fields()
	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += k + ": " + r.fields[k].String()
	}
	return out + "}"
}

func (r *Record) Equal(v Value) bool {
	other, ok := v.(*Record)
	if !ok || len(r.fields) != len(other.fields) {
		return false
	}
	for k, fv := range r.fields {
		ov, ok := other.fields[k]
		if !ok || !fv.Equal(ov) {
			return false
		}
	}
	return true
}

// ItemKey is the permanent identity of a list item (spec §3 "Item key").
// It survives reorderings, filter changes, and persistence round-trips.
type ItemKey uint64

// List is an ordered sequence of (ItemKey, Value) pairs.
type List struct {
	items []Item
}

// Item pairs a stable key with its current value.
type Item struct {
	Key   ItemKey
	Value Value
}

func NewList(items ...Item) *List {
	cp := append([]Item(nil), items...)
	return &List{items: cp}
}

func (l *List) Kind() Kind { return KindList }
func (l *List) Len() int   { return len(l.items) }

func (l *List) Items() []Item { return append([]Item(nil), l.items...) }

func (l *List) At(i int) (Item, bool) {
	if i < 0 || i >= len(l.items) {
		return Item{}, false
	}
	return l.items[i], true
}

func (l *List) IndexOf(key ItemKey) int {
	for i, it := range l.items {
		if it.Key == key {
			return i
		}
	}
	return -1
}

func (l *List) String() string {
	out := "["
	for i, it := range l.items {
		if i > 0 {
			out += ", "
		}
		out += it.Value.String()
	}
	return out + "]"
}

// Equal compares lists item-key-wise: two lists are equal iff their ordered
// item-key sequences are equal and the values at each key are equal. This
// uses identity rather than structural equality so that reordering two
// equal-valued items is distinguishable from a no-op (spec §4.L).
func (l *List) Equal(v Value) bool {
	other, ok := v.(*List)
	if !ok || len(l.items) != len(other.items) {
		return false
	}
	for i, it := range l.items {
		oit := other.items[i]
		if it.Key != oit.Key || !it.Value.Equal(oit.Value) {
			return false
		}
	}
	return true
}

// Skip is the sentinel meaning "no value produced this time; downstream
// keeps the previous value."
type skipValue struct{}

var Skip Value = skipValue{}

func (skipValue) Kind() Kind     { return KindSkip }
func (skipValue) String() string { return "<skip>" }
func (skipValue) Equal(v Value) bool {
	_, ok := v.(skipValue)
	return ok
}

// IsSkip reports whether v is the Skip sentinel.
func IsSkip(v Value) bool {
	_, ok := v.(skipValue)
	return ok
}

// Flush is the sentinel that propagates through operators unchanged, used
// for bypass/error-style flow (spec §4.L, §4.E).
type Flush struct {
	Payload Value // nil permitted
}

func (f Flush) Kind() Kind { return KindFlush }
func (f Flush) String() string {
	if f.Payload == nil {
		return "<flush>"
	}
	return "<flush:" + f.Payload.String() + ">"
}
func (f Flush) Equal(v Value) bool {
	other, ok := v.(Flush)
	if !ok {
		return false
	}
	if (f.Payload == nil) != (other.Payload == nil) {
		return false
	}
	if f.Payload == nil {
		return true
	}
	return f.Payload.Equal(other.Payload)
}

// IsFlush reports whether v is a Flush sentinel.
func IsFlush(v Value) bool {
	_, ok := v.(Flush)
	return ok
}

// Error is a typed error value (spec §7.2): type mismatches and arithmetic
// errors surface as this, and propagate like Flush through operators that
// don't explicitly catch them.
type Error struct {
	Code    string
	Message string
}

func NewError(code, message string) Error { return Error{Code: code, Message: message} }

func (e Error) Kind() Kind     { return KindFlush } // propagates exactly like Flush
func (e Error) String() string { return "<error:" + e.Code + ":" + e.Message + ">" }
func (e Error) Equal(v Value) bool {
	other, ok := v.(Error)
	return ok && e.Code == other.Code && e.Message == other.Message
}

// IsError reports whether v is a typed error value.
func IsError(v Value) bool {
	_, ok := v.(Error)
	return ok
}

// formatFloat matches the teacher's %g-style compact float rendering (see
// gix internal/value.Float.String), but keeps an explicit integer form for
// whole numbers so Number(3).String() == "3" not "3e+00".
func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
