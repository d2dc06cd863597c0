// Package growth holds the growable-vector strategies under measurement.
package growth

import "slices"

// Vector is the part of a growable vector the benchmarks touch.
type Vector interface {
	Len() int
	Cap() int
	// Reserve makes room for at least n elements in total. It never shrinks.
	Reserve(n int)
}

// Factory constructs vectors, either with the implementation default
// capacity or with an explicit one.
type Factory interface {
	New() Vector
	WithCapacity(n int) Vector
}

// Slice is a Vector over a plain Go slice.
type Slice struct {
	items []int64
}

func (s *Slice) Len() int { return len(s.items) }
func (s *Slice) Cap() int { return cap(s.items) }

func (s *Slice) Reserve(n int) {
	if n > cap(s.items) {
		s.items = slices.Grow(s.items, n-len(s.items))
	}
}

// SliceFactory builds Slice vectors. The default capacity of a Go slice is
// zero: New returns a nil backing array.
type SliceFactory struct{}

func (SliceFactory) New() Vector {
	return &Slice{}
}

func (SliceFactory) WithCapacity(n int) Vector {
	return &Slice{items: make([]int64, 0, n)}
}
