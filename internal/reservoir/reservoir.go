// ============================================================================
// Bounded Reservoir Sampling
// ============================================================================
//
// Package: internal/reservoir
// File: reservoir.go
// Purpose: Per-series bounded reservoir implementing spec.md §4.4's retention
// rules: same-step offers collapse (last write wins in place), the single
// most-recently-offered item is always retained as a preemption anchor, and
// once a series has seen more distinct steps than its capacity, each new
// distinct step is retained with probability capacity/distinctStepsSeen
// (classic Algorithm R).
//
// There is no teacher file for this algorithm (original_source/run.rs
// references a StageReservoir type whose implementation wasn't in the
// retrieved pack); this is grounded instead on the well-known shape of
// TensorBoard's own reservoir.py (_ReservoirBucket.AddItem: reservoir draw,
// then on rejection pop the last slot and append the new item so the most
// recent offer is never silently dropped) translated into idiomatic Go
// generics the way the teacher expresses its other generic-free collections
// (e.g. internal/jobmanager's map-of-struct bookkeeping), using math/rand/v2
// per the modern stdlib convention rather than the legacy math/rand API.
//
// ============================================================================

// Package reservoir implements bounded, last-offer-preserving reservoir
// sampling over per-step staged items.
package reservoir

import (
	"math/rand/v2"
	"sort"

	"github.com/ChuLiYu/run-loader/pkg/types"
)

// Staged is the constraint on items a Reservoir can hold: every item must
// name the step it was offered at.
type Staged interface {
	StepKey() types.Step
}

// item holds one retained staged value. Which item is the preemption anchor
// is tracked by Reservoir.lastStep, not by the item itself.
type item[T Staged] struct {
	value T
}

// Reservoir retains up to capacity items keyed by distinct step, always
// keeping the most recently offered item regardless of capacity.
//
// Not safe for concurrent use; callers serialize access the way the run
// loader does (one loader goroutine stages into its own reservoirs, then
// commits under the writer side of a RWMutex).
type Reservoir[T Staged] struct {
	capacity int
	items    []item[T]
	byStep   map[types.Step]int // step -> index into items, for O(1) overwrite
	numSeen  int                // count of offers at a step not retained at the time
	lastStep types.Step
	haveLast bool
}

// New constructs a Reservoir with the given capacity. Capacity zero means
// the reservoir retains nothing but the always-kept most-recent offer.
func New[T Staged](capacity int) *Reservoir[T] {
	return &Reservoir[T]{
		capacity: capacity,
		byStep:   make(map[types.Step]int),
	}
}

// Len returns the number of items currently retained.
func (r *Reservoir[T]) Len() int { return len(r.items) }

// Items returns a copy of the retained items in slot order: insertion order
// until the reservoir is full, after which an accepted item takes the slot
// of the item it evicts.
func (r *Reservoir[T]) Items() []T {
	out := make([]T, len(r.items))
	for i, it := range r.items {
		out[i] = it.value
	}
	return out
}

// Offer stages value. If a retained item already exists at the same step,
// it is overwritten in place (last offer at that step wins). Otherwise value
// is a new distinct step: it is inserted while under capacity, or accepted
// into a uniformly random slot with probability capacity/numSeen once at
// capacity per Algorithm R. Regardless of the random draw's outcome, value
// becomes the new preemption anchor: the previous anchor is evicted and
// value is force-kept if the random draw rejected it.
func (r *Reservoir[T]) Offer(value T) {
	step := value.StepKey()

	if idx, ok := r.byStep[step]; ok {
		r.items[idx].value = value
		r.lastStep = step
		r.haveLast = true
		return
	}

	r.numSeen++

	switch {
	case r.capacity == 0:
		// No steady-state retention; still must become the anchor below.
	case len(r.items) < r.capacity:
		r.byStep[step] = len(r.items)
		r.items = append(r.items, item[T]{value: value})
		r.lastStep = step
		r.haveLast = true
		return
	default:
		j := rand.IntN(r.numSeen)
		if j < r.capacity {
			evictedStep := r.items[j].value.StepKey()
			r.items[j] = item[T]{value: value}
			delete(r.byStep, evictedStep)
			r.byStep[step] = j
			r.lastStep = step
			r.haveLast = true
			return
		}
	}

	// Random draw rejected value (or capacity is 0): force it in as the
	// anchor anyway, evicting the previous anchor's slot if there is one
	// to make room, matching the "most recent offer is never lost" rule.
	if r.haveLast {
		if idx, ok := r.byStep[r.lastStep]; ok && r.lastStep != step {
			delete(r.byStep, r.lastStep)
			r.items[idx] = item[T]{value: value}
			r.byStep[step] = idx
			r.lastStep = step
			return
		}
	}
	r.byStep[step] = len(r.items)
	r.items = append(r.items, item[T]{value: value})
	r.lastStep = step
	r.haveLast = true
}

// CommitInto copies the reservoir's currently retained items, in ascending
// step order, into dst via sink, used to publish staged values into a
// committed time series without exposing the reservoir's internal slice to
// the writer side.
func CommitInto[T Staged, V any](r *Reservoir[T], sink func(T) V, dst *[]V) {
	ordered := r.Items()
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].StepKey() < ordered[j].StepKey() })
	*dst = (*dst)[:0]
	for _, v := range ordered {
		*dst = append(*dst, sink(v))
	}
}
