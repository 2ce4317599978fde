// Package dispatch implements the Dispatcher (spec §4.D, component D): the
// single-threaded tick loop that ingests external events, drives the
// evaluator's Propagate phase, commits staged HOLD writes, drains emitted
// effects, and ends with a Settle phase that does no work of its own (scope
// reclamation is left to the host, via Store.Reclaim) — strictly in that
// order, once per tick, with no concurrency inside a tick (grounded on the teacher's
// eventloop.Loop.tick, which runs its own phases — internal queue, external
// queue, microtasks, timers — in one fixed sequence per iteration).
package dispatch

import (
	"container/heap"
	"context"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-microbatch"
	"github.com/joeycumines/logiface"

	"github.com/boonlang/boon-core/internal/blog"
	"github.com/boonlang/boon-core/internal/cache"
	"github.com/boonlang/boon-core/internal/effect"
	"github.com/boonlang/boon-core/internal/eval"
	"github.com/boonlang/boon-core/internal/persist"
	"github.com/boonlang/boon-core/internal/program"
	"github.com/boonlang/boon-core/internal/scope"
	"github.com/boonlang/boon-core/internal/value"
)

// Dispatcher owns one program's live state and runs its tick loop.
type Dispatcher struct {
	Prog  *program.Program
	Store *scope.Store
	Cache *cache.Cache
	Eval  *eval.Evaluator
	Log   *blog.Logger

	Persist persist.Adapter

	tick     uint64
	timers   timerHeap
	timerSeq uint64

	// ingress bounds how many events of a given kind this Dispatcher will
	// accept per second (10,000 per kind); an event over that rate is
	// dropped rather than queued, and the drop is written to Log, so a
	// runaway producer degrades by losing its newest events instead of
	// making every tick progressively more expensive. There is no ingress
	// queue and no drop-oldest policy.
	ingress *catrate.Limiter

	// logBatch coalesces KindLog effects emitted across many ticks into
	// fewer host round-trips (spec §6 "Logging effects"), mirroring the
	// teacher's own preference for batched structured-log sinks.
	logBatch *microbatch.Batcher[effect.Effect]

	drain func(effect.Effect)
}

// New creates a Dispatcher for prog. drain receives, in emission order,
// every effect.Effect a tick emits except KindLog, which goes to log
// through a batcher instead. Persistence effects are also carried out
// against persistAdapter before they reach drain (a KindPersistRead effect
// then carries the value read); timer start/cancel effects also update the
// Dispatcher's own timer heap. log and persistAdapter may be nil.
func New(prog *program.Program, log *blog.Logger, persistAdapter persist.Adapter, drain func(effect.Effect)) *Dispatcher {
	if log == nil {
		log = blog.Discard()
	}
	if persistAdapter == nil {
		persistAdapter = persist.NewMemory()
	}
	if drain == nil {
		drain = func(effect.Effect) {}
	}

	store := scope.NewStore()
	c := cache.New()
	ev := eval.New(prog, store, c, log)

	d := &Dispatcher{
		Prog:    prog,
		Store:   store,
		Cache:   c,
		Eval:    ev,
		Log:     log,
		Persist: persistAdapter,
		ingress: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 10_000,
		}),
		drain: drain,
	}
	d.logBatch = microbatch.NewBatcher[effect.Effect](
		&microbatch.BatcherConfig{MaxSize: 64, FlushInterval: 25 * time.Millisecond},
		func(_ context.Context, jobs []effect.Effect) error {
			for _, e := range jobs {
				log.Build(logLevel(e.Level)).Log(e.Message)
			}
			return nil
		},
	)
	return d
}

// Close releases the Dispatcher's background resources (the log batcher's
// flush goroutine).
func (d *Dispatcher) Close() error {
	return d.logBatch.Close()
}

// Tick runs one full cycle: Ingest, Propagate, Commit, Effects, Settle (spec
// §4.D). It returns the effects emitted this tick that were handed to drain:
// every effect except KindLog, which goes to the structured logger instead.
func (d *Dispatcher) Tick(ctx context.Context, events []effect.Event) ([]effect.Effect, error) {
	d.tick++
	d.Eval.BeginTick(d.tick)

	// --- Ingest ---
	for i, e := range events {
		if _, ok := d.ingress.Allow(e.Kind); !ok {
			d.Log.Build(logiface.LevelInformational).Log("dropped event over ingress rate")
			continue
		}
		seq := e.Seq
		if seq == 0 {
			seq = uint64(i + 1)
		}
		if err := d.ingest(e, seq); err != nil {
			return nil, err
		}
	}
	for _, t := range d.timers.dueAt(d.tick) {
		if err := d.Store.FireLink(d.timerSlot(t.id), t.seq, value.Skip); err != nil {
			return nil, err
		}
	}

	// --- Propagate ---
	if d.Prog.Root != nil {
		if _, err := d.Eval.Eval(d.Prog.Root, d.Store.Root()); err != nil {
			return nil, err
		}
	}

	// --- Commit ---
	d.Store.Commit()

	// --- Effects ---
	out := make([]effect.Effect, 0, len(d.Eval.Effects))
	for _, e := range d.Eval.Effects {
		switch e.Kind {
		case effect.KindLog:
			_, _ = d.logBatch.Submit(ctx, e)
		case effect.KindPersistWrite:
			_ = d.Persist.Write(ctx, e.PersistKey, e.PersistValue)
			out = append(out, e)
		case effect.KindPersistRead:
			v, err := d.Persist.Read(ctx, e.PersistKey)
			e.PersistValue = v
			if err != nil {
				e.PersistValue = nil
			}
			out = append(out, e)
		case effect.KindTimerStart:
			d.timerSeq++
			heap.Push(&d.timers, pendingTimer{fireAtTick: d.tick + ticksFor(e.Delay), seq: d.timerSeq, id: e.TimerID})
			out = append(out, e)
		case effect.KindTimerCancel:
			d.timers.remove(e.TimerID)
			out = append(out, e)
		default:
			out = append(out, e)
		}
	}
	for _, e := range out {
		d.drain(e)
	}

	// --- Settle ---
	// Scope-tree liveness (reclaiming subtrees whose owning list item was
	// removed) is driven explicitly by the host calling Store.Reclaim on
	// the scopes named in a ListRemove diff's result, rather than swept
	// here — the Dispatcher has no independent notion of "unreachable"
	// beyond what the list cells already tell it.

	return out, nil
}

func (d *Dispatcher) ingest(e effect.Event, seq uint64) error {
	switch e.Kind {
	case effect.EventScalar:
		// An external scalar occurrence is always bound through a LINK,
		// never written straight into a HOLD cell: HOLD's only writer is
		// its own Update expression, evaluated during Propagate (spec §4.E
		// "HOLD"). The program observes the external value by reading the
		// LINK in its Update/Init expression.
		return d.Store.FireLink(e.Target, seq, e.Value)
	case effect.EventItem:
		d.Store.MutateList(e.Target, e.ListDiff)
		return nil
	case effect.EventTimerFired:
		return d.Store.FireLink(e.Target, seq, value.Skip)
	case effect.EventRoute:
		return d.Store.FireLink(e.Target, seq, routeValue(e.Route))
	case effect.EventPersistenceComplete:
		v := e.PersistValue
		if e.PersistErr != nil {
			v = persistErrorValue(e.PersistErr)
		}
		return d.Store.FireLink(e.Target, seq, v)
	default:
		return nil
	}
}

// timerSlot derives a stable-per-id slot for firing a LINK when a timer
// previously started under that id elapses. The scope used is the store
// root: timers are a flat namespace (spec §6 "Timers"), not scoped to any
// particular call or list item.
func (d *Dispatcher) timerSlot(id string) scope.SlotKey {
	return scope.SlotKey{Scope: d.Store.Root(), Expr: program.ExprID(timerExprID(id))}
}

func ticksFor(delay time.Duration) uint64 {
	if delay <= 0 {
		return 1
	}
	return uint64(delay / time.Millisecond)
}

func timerExprID(id string) int64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(id); i++ {
		h ^= uint64(id[i])
		h *= 1099511628211
	}
	return -1 - int64(h&0x7fffffffffffffff)
}

func logLevel(s string) logiface.Level {
	switch s {
	case "trace":
		return logiface.LevelTrace
	case "debug":
		return logiface.LevelDebug
	case "warning":
		return logiface.LevelWarning
	case "error":
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

func routeValue(route string) value.Value { return value.Text(route) }

func persistErrorValue(err error) value.Value {
	return value.NewError("persist_error", err.Error())
}
