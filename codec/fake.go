package codec

import (
	"errors"
	"image"
	"math"
)

// FakeColorCodec is a trivial ColorCodec test double: it "encodes" an
// image by copying its Pix bytes verbatim (prefixed with its bounds) and
// "decodes" by reversing that, so sender/receiver tests can exercise the
// full pipeline without a real VP8/H.264 dependency.
type FakeColorCodec struct {
	// FailEncode, if set, is returned by Encode instead of succeeding,
	// for exercising spec.md §7's FatalCodecError path.
	FailEncode error
}

// Encode implements ColorCodec.
func (f *FakeColorCodec) Encode(img Image, keyframe bool) ([]byte, error) {
	if f.FailEncode != nil {
		return nil, f.FailEncode
	}
	rgba, ok := img.(*image.RGBA)
	if !ok {
		return nil, errors.New("codec: FakeColorCodec only supports *image.RGBA")
	}
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	out := make([]byte, 8+len(rgba.Pix))
	putUint32(out[0:4], uint32(w))
	putUint32(out[4:8], uint32(h))
	copy(out[8:], rgba.Pix)
	return out, nil
}

// Decode implements ColorCodec.
func (f *FakeColorCodec) Decode(data []byte) (Image, error) {
	if len(data) < 8 {
		return nil, errors.New("codec: FakeColorCodec truncated payload")
	}
	w := int(getUint32(data[0:4]))
	h := int(getUint32(data[4:8]))
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(rgba.Pix, data[8:])
	return rgba, nil
}

// FakeAudioCodec is a trivial AudioCodec test double: it encodes PCM
// samples as their raw IEEE-754 bit patterns, four bytes each.
type FakeAudioCodec struct{}

// Encode implements AudioCodec.
func (f *FakeAudioCodec) Encode(pcm []float32, frameSize int) ([]byte, error) {
	n := frameSize
	if n > len(pcm) {
		n = len(pcm)
	}
	out := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		putUint32(out[4*i:4*i+4], math.Float32bits(pcm[i]))
	}
	if len(out) > MaxAudioPacketContentSize {
		return nil, errors.New("codec: FakeAudioCodec output exceeds MaxAudioPacketContentSize")
	}
	return out, nil
}

// FakeSensorDevice is a trivial SensorDevice test double serving a fixed
// calibration and a queue of pre-built frames.
type FakeSensorDevice struct {
	Calib  Calibration
	Frames []SensorFrame
	next   int
}

// GetCalibration implements SensorDevice.
func (f *FakeSensorDevice) GetCalibration() (Calibration, error) {
	return f.Calib, nil
}

// GetFrame implements SensorDevice, returning queued frames in order and
// ok=false once exhausted.
func (f *FakeSensorDevice) GetFrame() (SensorFrame, bool, error) {
	if f.next >= len(f.Frames) {
		return SensorFrame{}, false, nil
	}
	frame := f.Frames[f.next]
	f.next++
	return frame, true, nil
}

// FakeMicrophone is a trivial Microphone test double serving a fixed
// queue of sample batches.
type FakeMicrophone struct {
	Batches [][]float32
	next    int
}

// ReadSamples implements Microphone, returning queued batches in order
// and ok=false once exhausted.
func (f *FakeMicrophone) ReadSamples() ([]float32, bool, error) {
	if f.next >= len(f.Batches) {
		return nil, false, nil
	}
	batch := f.Batches[f.next]
	f.next++
	return batch, true, nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
