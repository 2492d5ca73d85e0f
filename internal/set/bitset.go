// Package set provides the optimizer's set algebra: a dense bitset
// for small-integer domains (block ids, available-expression ids,
// register ids for live uses) backed by github.com/willf/bitset, and a
// generic ordered list for the register/instruction-keyed reaching
// definitions, whose domain isn't a small dense range of integers.
package set

import "github.com/willf/bitset"

// Bits is a dense set of small non-negative integers.
type Bits struct {
	b *bitset.BitSet
}

// NewBits returns an empty bit set.
func NewBits() *Bits {
	return &Bits{b: bitset.New(0)}
}

// Clone returns an independent copy.
func (s *Bits) Clone() *Bits {
	return &Bits{b: s.b.Clone()}
}

// Add sets bit i.
func (s *Bits) Add(i uint) *Bits {
	s.b.Set(i)
	return s
}

// Remove clears bit i.
func (s *Bits) Remove(i uint) *Bits {
	s.b.Clear(i)
	return s
}

// Has reports whether bit i is set.
func (s *Bits) Has(i uint) bool {
	return s.b.Test(i)
}

// Union returns a new set containing every bit in s or other.
func (s *Bits) Union(other *Bits) *Bits {
	return &Bits{b: s.b.Union(other.b)}
}

// Intersection returns a new set containing every bit in both s and other.
func (s *Bits) Intersection(other *Bits) *Bits {
	return &Bits{b: s.b.Intersection(other.b)}
}

// Equal reports whether s and other contain exactly the same bits.
func (s *Bits) Equal(other *Bits) bool {
	return s.b.Equal(other.b)
}

// Len returns the number of set bits.
func (s *Bits) Len() uint {
	return s.b.Count()
}

// Each calls fn for every set bit in ascending order.
func (s *Bits) Each(fn func(i uint)) {
	for i, ok := s.b.NextSet(0); ok; i, ok = s.b.NextSet(i + 1) {
		fn(i)
	}
}

// Slice returns the set bits as a sorted slice.
func (s *Bits) Slice() []uint {
	var out []uint
	s.Each(func(i uint) { out = append(out, i) })
	return out
}

// Fold reduces the set bits in ascending order.
func Fold[A any](s *Bits, init A, fn func(acc A, i uint) A) A {
	acc := init
	s.Each(func(i uint) { acc = fn(acc, i) })
	return acc
}

// UniverseUpTo returns the set {0, 1, ..., n-1}, used to seed
// available expressions' "all expressions" value.
func UniverseUpTo(n uint) *Bits {
	s := NewBits()
	for i := uint(0); i < n; i++ {
		s.Add(i)
	}
	return s
}
