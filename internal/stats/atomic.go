package stats

import (
	"math"
	"sync/atomic"
)

// Float64 is a float64 that supports lock-free concurrent addition.
// The zero value is 0.
type Float64 struct {
	bits atomic.Uint64
}

// Add adds delta with a compare-and-swap retry loop over the bit pattern
// and returns the new value.
func (f *Float64) Add(delta float64) float64 {
	for {
		old := f.bits.Load()
		next := math.Float64frombits(old) + delta
		if f.bits.CompareAndSwap(old, math.Float64bits(next)) {
			return next
		}
	}
}

// Load returns the current value.
func (f *Float64) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}
