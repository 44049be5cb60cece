// Package trvl implements the temporal run-length/variable-length depth
// codec described in spec.md §4.1: a per-pixel stability-gated temporal
// predictor followed by a zero/nonzero run-length encoding of the
// zig-zag-folded residual stream, packed as 4-bit nibbles into 32-bit
// words.
//
// The nibble/VLE packing is grounded on the RVL paper's reference
// implementation (Wilson, 2017) as carried in
// _examples/original_source/cpp/src/core/kh_rvl.cpp; the temporal
// predictor and stability gate are specified directly by spec.md §4.1,
// since the original's TrvlEncoder/TrvlDecoder sources were not retained
// in the filtered source pack.
package trvl

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// ChangeThreshold is the maximum |delta| (in mm) for a pixel to be
	// considered unchanged between frames.
	ChangeThreshold = 10
	// InvalidationThreshold is the number of consecutive stable frames
	// before a pixel is eligible to be zero-gated.
	InvalidationThreshold = 2
)

// ErrCompressionGrewInput is returned by Encoder.Compress when a delta
// frame's encoded output would be larger than the raw input (2 bytes per
// pixel). Callers re-encode the same frame as a keyframe; keyframes are
// never rejected for size.
var ErrCompressionGrewInput = errors.New("trvl: compressed output exceeded the input size")

// ErrTruncated is returned by Decoder.Decompress when the input byte
// stream ends mid-nibble-word or mid-run, which can happen if a caller
// passes a corrupted or incomplete depth payload.
var ErrTruncated = errors.New("trvl: truncated depth payload")

// Encoder holds the per-pixel predictor state for one depth stream. It is
// not safe for concurrent use; one Encoder belongs to exactly one sender
// task (spec.md §5 "Shared Resources").
type Encoder struct {
	width, height int
	prev          []int16
	count         []uint8
}

// NewEncoder allocates predictor state for a width x height depth image.
func NewEncoder(width, height int) *Encoder {
	n := width * height
	return &Encoder{
		width:  width,
		height: height,
		prev:   make([]int16, n),
		count:  make([]uint8, n),
	}
}

// Compress encodes pixels (scanned in row-major order) against the
// encoder's running predictor state. On keyframe, the predictor state is
// reset to zero first, so the residual equals the raw pixel values.
func (e *Encoder) Compress(pixels []int16, keyframe bool) ([]byte, error) {
	n := e.width * e.height
	if len(pixels) != n {
		return nil, fmt.Errorf("trvl: expected %d pixels, got %d", n, len(pixels))
	}

	if keyframe {
		for i := range e.prev {
			e.prev[i] = 0
			e.count[i] = 0
		}
	}

	residual := make([]int32, n)
	for i, p := range pixels {
		delta := int32(p) - int32(e.prev[i])
		stable := delta >= -ChangeThreshold && delta <= ChangeThreshold

		var encoded int32
		if stable && e.count[i] >= InvalidationThreshold {
			encoded = 0
		} else {
			encoded = delta
		}

		if stable {
			if e.count[i] < InvalidationThreshold {
				e.count[i]++
			}
		} else {
			e.count[i] = 0
		}

		e.prev[i] = int16(int32(e.prev[i]) + encoded)
		residual[i] = encoded
	}

	out := encodeResidualStream(residual)
	if !keyframe && len(out) > n*2 {
		return nil, ErrCompressionGrewInput
	}
	return out, nil
}

// Decoder holds the per-pixel reconstruction state for one depth stream.
// Its prev buffer tracks exactly what the paired Encoder's prev buffer
// tracks (spec.md Property 2).
type Decoder struct {
	width, height int
	prev          []int16
}

// NewDecoder allocates reconstruction state for a width x height depth
// image.
func NewDecoder(width, height int) *Decoder {
	n := width * height
	return &Decoder{
		width:  width,
		height: height,
		prev:   make([]int16, n),
	}
}

// Reset zeroes the decoder's reconstruction state, forcing the next
// Decompress call to behave as if decoding a fresh keyframe regardless
// of its keyframe argument's prior history. Used by receiver keyframe
// catch-up (spec.md §4.7) to realign state after dropping intervening
// frames.
func (d *Decoder) Reset() {
	for i := range d.prev {
		d.prev[i] = 0
	}
}

// Decompress reverses Compress. On keyframe, the reconstruction state is
// reset to zero first.
func (d *Decoder) Decompress(data []byte, keyframe bool) ([]int16, error) {
	n := d.width * d.height
	if keyframe {
		for i := range d.prev {
			d.prev[i] = 0
		}
	}

	r := &nibbleReader{buf: data}
	out := make([]int16, n)
	i := 0
	for i < n {
		zeros, err := r.decodeVLE()
		if err != nil {
			return nil, err
		}
		if zeros < 0 || i+int(zeros) > n {
			return nil, ErrTruncated
		}
		for z := int32(0); z < zeros; z++ {
			out[i] = d.prev[i]
			i++
		}

		if i == n {
			break
		}

		nonzeros, err := r.decodeVLE()
		if err != nil {
			return nil, err
		}
		if nonzeros < 0 || i+int(nonzeros) > n {
			return nil, ErrTruncated
		}
		for k := int32(0); k < nonzeros; k++ {
			u, err := r.decodeVLE()
			if err != nil {
				return nil, err
			}
			delta := zigzagDecode(uint32(u))
			d.prev[i] = int16(int32(d.prev[i]) + delta)
			out[i] = d.prev[i]
			i++
		}
	}

	return out, nil
}

// encodeResidualStream implements the zero-run / nonzero-run / zigzag-value
// alternation described in spec.md §4.1, reusing the nibble VLE packing
// from the RVL reference.
func encodeResidualStream(residual []int32) []byte {
	w := &nibbleWriter{}
	i, n := 0, len(residual)
	for i < n {
		zeroStart := i
		for i < n && residual[i] == 0 {
			i++
		}
		w.encodeVLE(uint32(i - zeroStart))

		nonzeroStart := i
		for i < n && residual[i] != 0 {
			i++
		}
		w.encodeVLE(uint32(i - nonzeroStart))

		for j := nonzeroStart; j < i; j++ {
			w.encodeVLE(zigzagEncode(residual[j]))
		}
	}
	return w.finish()
}

func zigzagEncode(delta int32) uint32 {
	return uint32((delta << 1) ^ (delta >> 31))
}

func zigzagDecode(u uint32) int32 {
	return int32(u>>1) ^ -int32(u&1)
}

// nibbleWriter packs 4-bit nibbles into big-endian 32-bit words, matching
// the RVL reference's word-at-a-time flushing.
type nibbleWriter struct {
	buf  []byte
	word uint32
	n    uint // nibbles accumulated in word, 0..7
}

func (w *nibbleWriter) writeNibble(nibble byte) {
	w.word = (w.word << 4) | uint32(nibble&0xF)
	w.n++
	if w.n == 8 {
		w.flush(0)
	}
}

func (w *nibbleWriter) flush(padNibbles uint) {
	word := w.word << (4 * padNibbles)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], word)
	w.buf = append(w.buf, b[:]...)
	w.word = 0
	w.n = 0
}

// encodeVLE writes value as a sequence of 4-bit nibbles: low 3 bits carry
// data, the high bit signals more nibbles follow.
func (w *nibbleWriter) encodeVLE(value uint32) {
	for {
		nibble := byte(value & 0x7)
		value >>= 3
		if value != 0 {
			nibble |= 0x8
		}
		w.writeNibble(nibble)
		if value == 0 {
			return
		}
	}
}

// finish flushes any partial trailing word, left-padded per spec.md §4.1.
func (w *nibbleWriter) finish() []byte {
	if w.n > 0 {
		w.flush(8 - w.n)
	}
	return w.buf
}

// nibbleReader is the inverse of nibbleWriter.
type nibbleReader struct {
	buf  []byte
	pos  int
	word uint32
	n    uint // nibbles remaining in word, 0..8
}

func (r *nibbleReader) readNibble() (byte, error) {
	if r.n == 0 {
		if r.pos+4 > len(r.buf) {
			return 0, ErrTruncated
		}
		r.word = binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
		r.pos += 4
		r.n = 8
	}
	nibble := byte(r.word >> 28)
	r.word <<= 4
	r.n--
	return nibble, nil
}

func (r *nibbleReader) decodeVLE() (int32, error) {
	var value uint32
	var shift uint
	for {
		nibble, err := r.readNibble()
		if err != nil {
			return 0, err
		}
		value |= uint32(nibble&0x7) << shift
		shift += 3
		if nibble&0x8 == 0 {
			break
		}
		if shift > 32 {
			return 0, ErrTruncated
		}
	}
	return int32(value), nil
}
