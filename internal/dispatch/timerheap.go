package dispatch

import (
	"container/heap"

	"github.com/boonlang/boon-core/internal/order"
)

// pendingTimer is one scheduled timer entry, ordered by its logical fire
// tick. Adapted directly from the teacher's eventloop timerHeap
// (container/heap.Interface over a min-heap of wall-clock deadlines); here
// the ordering key is a logical tick rather than time.Time, since the
// Dispatcher's notion of "when" is the tick counter, not wall-clock time —
// wall-clock scheduling is the host's job (cmd/boonrt bridges it in via
// go-eventloop.Loop).
type pendingTimer struct {
	fireAtTick uint64
	seq        uint64 // insertion order, for deterministic tie-break
	id         string
}

type timerHeap []pendingTimer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	return order.TickSeqLess(h[i].fireAtTick, h[j].fireAtTick, h[i].seq, h[j].seq)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(pendingTimer))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// dueAt pops and returns every timer due at or before tick.
func (h *timerHeap) dueAt(tick uint64) []pendingTimer {
	var due []pendingTimer
	for h.Len() > 0 && (*h)[0].fireAtTick <= tick {
		due = append(due, heap.Pop(h).(pendingTimer))
	}
	return due
}

// remove drops the first pending timer with the given id, if any, for
// TimerCancel effects.
func (h *timerHeap) remove(id string) bool {
	for i, t := range *h {
		if t.id == id {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}
