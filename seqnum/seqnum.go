// Package seqnum defines the types and arithmetic used for TCP sequence
// numbers. All comparisons are performed modulo 2^32, as required by RFC 793
// §3.3 ("Sequence Numbers"): a plain `<` on the raw uint32 values only works
// while the numbers stay far from wraparound.
package seqnum

// Value is a sequence number, stored modulo 2^32.
type Value uint32

// Size is a number of bytes of sequence space (window size, payload length).
type Size uint32

// Add returns v+delta, wrapping modulo 2^32.
func (v Value) Add(delta Size) Value {
	return v + Value(delta)
}

// Size returns the number of sequence numbers in [v, to), treating the
// range as living on the 2^32 ring.
func (v Value) Size(to Value) Size {
	return Size(to - v)
}

// LessThan reports whether v occurs before w on the sequence ring, i.e.
// whether 0 < w-v < 2^31, using the standard signed-difference comparison.
func (v Value) LessThan(w Value) bool {
	return int32(v-w) < 0
}

// LessThanEq reports whether v == w || v.LessThan(w).
func (v Value) LessThanEq(w Value) bool {
	return v == w || v.LessThan(w)
}

// InRange reports whether v is in [a, b) on the sequence ring.
func (v Value) InRange(a, b Value) bool {
	return v-a < b-a
}

// InWindow reports whether v is in [first, first+size).
func (v Value) InWindow(first Value, size Size) bool {
	if size == 0 {
		return false
	}
	return v.InRange(first, first.Add(size))
}
