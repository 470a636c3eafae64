// Package wrap32 implements the 32-bit-wrapping sequence number arithmetic
// that underlies TCP: absolute stream indices are 64-bit and monotonic, but
// the wire only ever carries the low 32 bits.
package wrap32

// Wrap32 is a 32-bit sequence number as it appears on the wire.
type Wrap32 struct {
	raw uint32
}

// New constructs a Wrap32 from its raw 32-bit wire value.
func New(raw uint32) Wrap32 {
	return Wrap32{raw: raw}
}

// Raw returns the underlying 32-bit wire value.
func (w Wrap32) Raw() uint32 {
	return w.raw
}

// Wrap maps an absolute 64-bit sequence number onto the wire, relative to a
// zero point (e.g. the connection's ISN).
func Wrap(n uint64, zeroPoint Wrap32) Wrap32 {
	return Wrap32{raw: zeroPoint.raw + uint32(n)}
}

// Unwrap returns the absolute sequence number closest to checkpoint whose
// low 32 bits, relative to zeroPoint, equal this Wrap32. Ties are broken
// toward the smaller candidate.
func (w Wrap32) Unwrap(zeroPoint Wrap32, checkpoint uint64) uint64 {
	delta := uint64(w.raw - zeroPoint.raw)
	const mod = uint64(1) << 32
	mid := (checkpoint &^ (mod - 1)) + delta

	candidates := make([]uint64, 0, 3)
	if mid >= mod {
		candidates = append(candidates, mid-mod)
	}
	candidates = append(candidates, mid)
	candidates = append(candidates, mid+mod)

	best := candidates[0]
	bestDist := absDiff(best, checkpoint)
	for _, c := range candidates[1:] {
		d := absDiff(c, checkpoint)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// Add returns the Wrap32 that is n sequence numbers ahead of w.
func (w Wrap32) Add(n uint32) Wrap32 {
	return Wrap32{raw: w.raw + n}
}

// Sub returns the raw 32-bit difference between w and zeroPoint.
func (w Wrap32) Sub(zeroPoint Wrap32) uint32 {
	return w.raw - zeroPoint.raw
}

func absDiff(x, y uint64) uint64 {
	if x < y {
		return y - x
	}
	return x - y
}
