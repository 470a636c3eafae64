// Package reassembler assembles a stream of possibly out-of-order, possibly
// overlapping byte substrings into an in-order ByteStream.
package reassembler

import "github.com/ycz0302/minnow/internal/bytestream"

type slot struct {
	b       byte
	present bool
}

// Reassembler holds a sliding window of pending bytes keyed by absolute
// stream index, flushing the contiguous prefix at head into the output
// stream as it becomes available.
type Reassembler struct {
	output *bytestream.ByteStream

	head uint64 // next expected absolute index
	buf  []slot // dense window covering [head, head+len(buf))

	pending uint64 // bytes buffered but not yet contiguous with head

	haveEOF  bool
	eofIndex uint64
}

// New constructs a Reassembler that flushes contiguous bytes into output.
func New(output *bytestream.ByteStream) *Reassembler {
	return &Reassembler{output: output}
}

// Output returns the ByteStream this reassembler feeds.
func (r *Reassembler) Output() *bytestream.ByteStream {
	return r.output
}

func (r *Reassembler) windowEnd() uint64 {
	return r.head + r.output.Writer().AvailableCapacity()
}

// Insert delivers a substring of the stream starting at the given absolute
// index. isLast marks data as containing the final byte of the stream.
// Overlapping or duplicate inserts are idempotent; bytes outside the current
// window are discarded.
func (r *Reassembler) Insert(firstIndex uint64, data []byte, isLast bool) {
	if isLast {
		r.haveEOF = true
		r.eofIndex = firstIndex + uint64(len(data))
	}

	windowEnd := r.windowEnd()
	// Trim to the intersection [head, windowEnd).
	if firstIndex < r.head {
		drop := r.head - firstIndex
		if drop >= uint64(len(data)) {
			data = nil
		} else {
			data = data[drop:]
		}
		firstIndex = r.head
	}
	if firstIndex+uint64(len(data)) > windowEnd {
		if firstIndex >= windowEnd {
			data = nil
		} else {
			data = data[:windowEnd-firstIndex]
		}
	}

	need := firstIndex + uint64(len(data)) - r.head
	if need > uint64(len(r.buf)) {
		grown := make([]slot, need)
		copy(grown, r.buf)
		r.buf = grown
	}

	for i, b := range data {
		pos := firstIndex - r.head + uint64(i)
		if !r.buf[pos].present {
			r.pending++
		}
		r.buf[pos] = slot{b: b, present: true}
	}

	w := r.output.Writer()
	for len(r.buf) > 0 && r.buf[0].present {
		w.Push([]byte{r.buf[0].b})
		r.pending--
		r.head++
		r.buf = r.buf[1:]
	}

	if r.haveEOF && r.head == r.eofIndex {
		w.Close()
	}
}

// CountBytesPending returns the number of bytes held in the window that are
// not yet contiguous with head (buffered but not flushed).
func (r *Reassembler) CountBytesPending() uint64 {
	return r.pending
}
