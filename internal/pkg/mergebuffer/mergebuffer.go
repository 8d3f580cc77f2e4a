// Package mergebuffer implements a single-slot, lock-free mailbox that hands
// messages from one producer goroutine to one consumer goroutine.
//
// The producer never waits for the consumer: when a message is already waiting
// in the slot, the new message is merged into a private copy of it and the
// merged result is published with a single compare-and-swap. The consumer takes
// whatever is present with a single swap. Memory is therefore bounded to one
// snapshot no matter how bursty the producer is, and the consumer never sees a
// half-merged message.
package mergebuffer

import "sync/atomic"

// Mergeable is implemented by messages that can be combined field-wise.
//
// Merge must return a new value equal to the receiver with the fields of newer
// applied on top. Neither operand may be mutated.
type Mergeable[T any] interface {
	Merge(newer T) T
}

// MergeBuffer holds at most one pending, fully merged message.
// The zero value is an empty buffer ready for use.
type MergeBuffer[T Mergeable[T]] struct {
	slot atomic.Pointer[T]
}

// New creates an empty MergeBuffer.
func New[T Mergeable[T]]() *MergeBuffer[T] {
	return &MergeBuffer[T]{}
}

// Put places msg in the buffer, merging it into any message that has not been
// taken yet. It never blocks; it retries only when the slot changed between
// the read and the publish.
func (b *MergeBuffer[T]) Put(msg T) {
	for {
		current := b.slot.Load()
		if current == nil {
			next := msg
			if b.slot.CompareAndSwap(nil, &next) {
				return
			}
			continue
		}
		// every publish is a fresh allocation, so pointer identity cannot repeat
		merged := (*current).Merge(msg)
		if b.slot.CompareAndSwap(current, &merged) {
			return
		}
	}
}

// Take empties the buffer, returning the message it held.
func (b *MergeBuffer[T]) Take() (T, bool) {
	p := b.slot.Swap(nil)
	if p == nil {
		var empty T
		return empty, false
	}
	return *p, true
}

// Pending reports whether a message is waiting to be taken.
func (b *MergeBuffer[T]) Pending() bool {
	return b.slot.Load() != nil
}
