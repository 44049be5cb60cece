// Package frame implements the frame message codec of spec.md §4.3: a
// packed little-endian binary layout binding a frame's timestamp,
// keyframe flag, and opaque color/depth codec payloads.
//
// Grounded on
// _examples/original_source/cpp/src/kh_frame_message.cpp/.h, which binds
// the same fields in the same order; this package replaces its
// cursor-arithmetic getters with explicit Marshal/Unmarshal functions over
// a value type, matching Go's encoding conventions rather than a
// stateful accessor object.
package frame

import (
	"encoding/binary"
	"errors"
	"math"
)

// headerSize is the fixed prefix before the color payload: 4 (timestamp)
// + 1 (keyframe) + 4 (color_size).
const headerSize = 4 + 1 + 4

// ErrTruncated is returned by Unmarshal when the buffer is shorter than
// the sizes embedded in its own header claim, which can happen on a
// corrupted or incompletely reassembled frame message.
var ErrTruncated = errors.New("frame: truncated frame message")

// Message is the immutable per-frame value described in spec.md §3. A
// Message with Keyframe true must carry Color and Depth payloads that are
// each self-decodable without prior codec state.
type Message struct {
	FrameID     uint32
	TimestampMs float32
	Keyframe    bool
	Color       []byte
	Depth       []byte
}

// Size returns the total wire size of m: 13 + len(Color) + len(Depth).
func (m Message) Size() int {
	return headerSize + len(m.Color) + 4 + len(m.Depth)
}

// Marshal encodes m per spec.md §4.3. FrameID is not part of the wire
// layout (the frame id travels in the enclosing video packet header per
// §4.4); it is carried on Message purely as an in-process correlation
// field and is not written by Marshal.
func Marshal(m Message) []byte {
	buf := make([]byte, m.Size())
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(m.TimestampMs))
	if m.Keyframe {
		buf[4] = 1
	}
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(m.Color)))
	n := copy(buf[9:], m.Color)
	off := 9 + n
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(m.Depth)))
	copy(buf[off+4:], m.Depth)
	return buf
}

// Unmarshal decodes a frame message body as laid out in spec.md §4.3. The
// caller supplies frameID (carried out of band, see Marshal) so the
// returned Message's FrameID is populated for downstream correlation.
func Unmarshal(frameID uint32, data []byte) (Message, error) {
	if len(data) < headerSize {
		return Message{}, ErrTruncated
	}
	ts := math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	keyframe := data[4] != 0
	colorSize := binary.LittleEndian.Uint32(data[5:9])

	colorEnd := 9 + int(colorSize)
	if colorEnd < 9 || colorEnd+4 > len(data) {
		return Message{}, ErrTruncated
	}
	color := data[9:colorEnd]

	depthSize := binary.LittleEndian.Uint32(data[colorEnd : colorEnd+4])
	depthStart := colorEnd + 4
	depthEnd := depthStart + int(depthSize)
	if depthEnd < depthStart || depthEnd > len(data) {
		return Message{}, ErrTruncated
	}
	depth := data[depthStart:depthEnd]

	return Message{
		FrameID:     frameID,
		TimestampMs: ts,
		Keyframe:    keyframe,
		Color:       append([]byte(nil), color...),
		Depth:       append([]byte(nil), depth...),
	}, nil
}
