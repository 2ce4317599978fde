// Package effect defines the typed effect and event wire types that cross
// the boundary between the engine and its host (spec §6 "External
// interfaces"). Effects are plain data, emitted by builtins during a tick's
// Propagate phase and drained in FIFO order during its Effects phase; they
// never re-enter the evaluator.
package effect

import (
	"time"

	"github.com/boonlang/boon-core/internal/scope"
	"github.com/boonlang/boon-core/internal/value"
)

// Kind tags an Effect's variant.
type Kind byte

const (
	KindViewPatch Kind = iota
	KindTimerStart
	KindTimerCancel
	KindPersistRead
	KindPersistWrite
	KindFocus
	KindClearTextInput
	KindNavigate
	KindLog
)

// PatchOp tags how a ViewPatch changes the view tree.
type PatchOp byte

const (
	PatchSetField PatchOp = iota
	PatchInsertItem
	PatchRemoveItem
	PatchMoveItem
)

// Effect is one instruction emitted to the host during a tick's Effects
// phase (spec §6). Exactly one of the Kind-specific fields is meaningful.
type Effect struct {
	Kind Kind

	// KindViewPatch
	Patch PatchOp
	Path  []string
	Value value.Value
	Key   value.ItemKey
	Pos   int

	// KindTimerStart / KindTimerCancel
	TimerID string
	Delay   time.Duration

	// KindPersistRead / KindPersistWrite
	PersistKey   string
	PersistValue value.Value

	// KindFocus / KindClearTextInput
	TargetPath []string

	// KindNavigate
	Route string

	// KindLog
	Level   string
	Message string
}

// EventKind tags an inbound Event's variant.
type EventKind byte

const (
	EventScalar EventKind = iota
	EventItem
	EventTimerFired
	EventRoute
	EventPersistenceComplete
)

// Event is one inbound occurrence the Dispatcher ingests at the start of
// a tick (spec §6 "External interfaces", §4.D phase 1). Target addresses
// exactly one slot; which of the value-carrying fields is meaningful
// depends on Kind.
type Event struct {
	Kind   EventKind
	Target scope.SlotKey

	// Seq orders this event against any other event landing on a LINK in
	// the same tick, for LATEST's tie-break (spec §8 "Deterministic LATEST
	// tie-break"). Zero means "let the Dispatcher assign one" (its
	// position within this Tick call's event batch); a host that wants two
	// events to be indistinguishably simultaneous gives them the same
	// explicit nonzero Seq.
	Seq uint64

	// EventScalar: the payload of a LINK fire landing on Target (an event
	// never writes a HOLD cell directly).
	Value value.Value

	// EventItem: a structural list mutation landing on Target (a list
	// declaration slot).
	ListDiff scope.ListDiff

	// EventTimerFired
	TimerID string
	FiredAt time.Time

	// EventRoute
	Route string

	// EventPersistenceComplete
	PersistKey   string
	PersistValue value.Value
	PersistErr   error
}
