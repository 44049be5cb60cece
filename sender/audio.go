// Grounded on _examples/original_source/cpp/app/sender/audio_packet_sender.h
// (soundio ring buffer fed by a microphone callback, drained in
// SAMPLES_PER_FRAME-sized chunks per send() call) and on SPEC_FULL.md's
// supplement 1: the capture-side callback must never block on a full
// ring, so AudioRing overwrites its oldest samples rather than blocking
// when capacity is exceeded.
package sender

import (
	"github.com/n0remac/rgbdstream/codec"
	"github.com/n0remac/rgbdstream/ids"
	"github.com/n0remac/rgbdstream/wire"
)

// AudioRing is a fixed-capacity float32 ring buffer with an
// overwrite-oldest push policy, matching the "fire and forget" framing
// spec.md §4.6 gives audio: dropping stale samples is preferable to
// blocking capture.
type AudioRing struct {
	buf   []float32
	start int
	count int
}

// NewAudioRing returns a ring buffer with room for capacity samples.
func NewAudioRing(capacity int) *AudioRing {
	return &AudioRing{buf: make([]float32, capacity)}
}

// Push appends samples, overwriting the oldest unread samples if the
// ring is full.
func (r *AudioRing) Push(samples []float32) {
	for _, s := range samples {
		idx := (r.start + r.count) % len(r.buf)
		r.buf[idx] = s
		if r.count < len(r.buf) {
			r.count++
		} else {
			r.start = (r.start + 1) % len(r.buf)
		}
	}
}

// Len returns the number of unread samples currently buffered.
func (r *AudioRing) Len() int {
	return r.count
}

// PopFrame removes and returns the oldest frameSize samples, or ok=false
// if fewer than frameSize samples are currently available.
func (r *AudioRing) PopFrame(frameSize int) (samples []float32, ok bool) {
	if r.count < frameSize {
		return nil, false
	}
	out := make([]float32, frameSize)
	for i := 0; i < frameSize; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	r.start = (r.start + frameSize) % len(r.buf)
	r.count -= frameSize
	return out, true
}

// AudioSender pulls whole frames out of a ring buffer, encodes them, and
// emits AudioPackets with a strictly increasing frame id, per spec.md
// §4.6's "Audio sender" paragraph.
type AudioSender struct {
	Ring       *AudioRing
	Codec      codec.AudioCodec
	FrameSize  int
	SessionID  uint32
	frameIDs   ids.FrameCounter
}

// Drain encodes and returns every complete frame currently available in
// the ring buffer, in order.
func (a *AudioSender) Drain() ([]wire.AudioPacket, error) {
	var packets []wire.AudioPacket
	for {
		samples, ok := a.Ring.PopFrame(a.FrameSize)
		if !ok {
			return packets, nil
		}
		opus, err := a.Codec.Encode(samples, a.FrameSize)
		if err != nil {
			return packets, err
		}
		packets = append(packets, wire.AudioPacket{
			SessionID: a.SessionID,
			FrameID:   a.frameIDs.Next(),
			Opus:      opus,
		})
	}
}
