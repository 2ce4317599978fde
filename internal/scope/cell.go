package scope

import "github.com/boonlang/boon-core/internal/value"

// HoldCell is explicit retained state (the HOLD operator). It is updated
// only at the commit phase of a tick; during evaluation it is readable as
// "last committed value" (spec §3 "Cells").
type HoldCell struct {
	hasValue bool
	value    value.Value

	pendingSet   bool
	pendingValue value.Value
	pendingTick  uint64
}

// Read returns the last committed value, and whether one has ever been
// committed (an un-committed HOLD reads as Skip per spec §4.S "Failure
// model").
func (c *HoldCell) Read() (value.Value, bool) {
	if !c.hasValue {
		return value.Skip, false
	}
	return c.value, true
}

// stage records a pending write to be applied at commit. Equal payloads in
// the same tick collapse to a single commit (spec §4.S); conflicting
// payloads are a programmer error, reported by the caller (Store.StageHoldCommit).
func (c *HoldCell) stage(tick uint64, v value.Value) (conflict bool) {
	if c.pendingSet && c.pendingTick == tick {
		if !c.pendingValue.Equal(v) {
			return true
		}
		return false
	}
	c.pendingSet = true
	c.pendingTick = tick
	c.pendingValue = v
	return false
}

func (c *HoldCell) commit() {
	if !c.pendingSet {
		return
	}
	c.value = c.pendingValue
	c.hasValue = true
	c.pendingSet = false
}

// LinkCell is a reactive channel bound at most once per tick to a scalar
// event payload. The payload is readable only in the tick it fired; in any
// later tick Read returns Skip (spec §3 "Cells").
type LinkCell struct {
	payload   value.Value
	firedTick uint64
	firedSeq  uint64
	hasFired  bool
}

// Read returns the payload if the link fired in the given tick, else Skip.
func (c *LinkCell) Read(tick uint64) value.Value {
	if c.hasFired && c.firedTick == tick {
		return c.payload
	}
	return value.Skip
}

// FiredSeq returns the ingest-assigned sequence number the link fired
// with in the given tick, and whether it fired at all that tick — the
// per-tick ordering LATEST consults to break a tie between two arms that
// both produced a value the same tick (spec §8 "Deterministic LATEST
// tie-break").
func (c *LinkCell) FiredSeq(tick uint64) (uint64, bool) {
	if c.hasFired && c.firedTick == tick {
		return c.firedSeq, true
	}
	return 0, false
}

// Fire binds the link's payload for the given tick, tagged with the
// ingest-assigned seq that orders it against any other link fired the
// same tick. Firing twice in the same tick with unequal payloads is a
// programmer error (double-commit), reported by the caller.
func (c *LinkCell) Fire(tick, seq uint64, payload value.Value) (conflict bool) {
	if c.hasFired && c.firedTick == tick {
		if !c.payload.Equal(payload) {
			return true
		}
		return false
	}
	c.hasFired = true
	c.firedTick = tick
	c.firedSeq = seq
	c.payload = payload
	return false
}

// ListDiffKind tags a list mutation.
type ListDiffKind byte

const (
	ListInsert ListDiffKind = iota
	ListRemove
	ListMove
	ListClear
)

// ListDiff describes one list_mutate operation (spec §4.S).
type ListDiff struct {
	Kind ListDiffKind

	// ListInsert
	Position int
	Initial  value.Value

	// ListRemove / ListMove
	Key value.ItemKey

	// ListMove
	NewPosition int
}

// ListCell is an ordered sequence of item keys plus an allocator that
// mints fresh, permanent keys (spec §3 "Cells").
type ListCell struct {
	order   []value.ItemKey
	nextKey value.ItemKey
}

// Keys returns the current ordered item keys.
func (c *ListCell) Keys() []value.ItemKey { return append([]value.ItemKey(nil), c.order...) }

func (c *ListCell) indexOf(key value.ItemKey) int {
	for i, k := range c.order {
		if k == key {
			return i
		}
	}
	return -1
}

// Mutate applies a staged diff immediately (list mutation is applied at
// ingest time, directly to the list cell's order, per spec §4.D phase 1 —
// list cells are the one cell kind mutated outside the hold commit buffer,
// since the item's own HOLD cells are what need the read-old/write-new
// discipline, not the ordering itself). Returns the item key created by
// ListInsert (0 for other kinds).
func (c *ListCell) Mutate(d ListDiff) value.ItemKey {
	switch d.Kind {
	case ListInsert:
		c.nextKey++
		key := c.nextKey
		pos := d.Position
		if pos < 0 || pos > len(c.order) {
			pos = len(c.order)
		}
		c.order = append(c.order, 0)
		copy(c.order[pos+1:], c.order[pos:])
		c.order[pos] = key
		return key
	case ListRemove:
		if i := c.indexOf(d.Key); i >= 0 {
			c.order = append(c.order[:i], c.order[i+1:]...)
		}
	case ListMove:
		i := c.indexOf(d.Key)
		if i < 0 {
			return 0
		}
		key := c.order[i]
		c.order = append(c.order[:i], c.order[i+1:]...)
		pos := d.NewPosition
		if pos < 0 || pos > len(c.order) {
			pos = len(c.order)
		}
		c.order = append(c.order, 0)
		copy(c.order[pos+1:], c.order[pos:])
		c.order[pos] = key
	case ListClear:
		c.order = c.order[:0]
	}
	return 0
}
