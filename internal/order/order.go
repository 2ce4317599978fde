// Package order provides small generic ordering helpers for the
// (primary, secondary) tie-break keys used by the engine's logical
// clocks: cache.Stamp's (Tick, Seq) pair and the dispatcher's
// (fireAtTick, seq) timer-heap key. Mirrors the teacher's
// catrate.ringBuffer[E constraints.Ordered], which uses the same
// constraints.Ordered type parameter for generic comparisons instead of
// one hand-written comparator per concrete type.
package order

import "golang.org/x/exp/constraints"

// TickSeqLess reports whether (aPrimary, aSecondary) orders strictly
// before (bPrimary, bSecondary): the primary field decides unless equal,
// in which case the secondary field breaks the tie.
func TickSeqLess[T constraints.Ordered](aPrimary, bPrimary, aSecondary, bSecondary T) bool {
	if aPrimary != bPrimary {
		return aPrimary < bPrimary
	}
	return aSecondary < bSecondary
}
