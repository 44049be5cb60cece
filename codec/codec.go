// Package codec declares the external collaborator interfaces of
// spec.md §6: color codec, audio codec, and sensor device. The core
// streaming pipeline (sender, receiver) depends only on these
// interfaces; it never parses color payloads or interprets raw sensor
// geometry itself.
//
// Grounded on spec.md §6 directly. The filtered original_source pack's
// color/audio codec bindings (kh_vp8.h, kh_opus.h) are thin wrappers
// over libvpx/libopus C APIs with no idiomatic Go translation in the
// teacher corpus; this package instead follows
// _examples/n0remac-robot-webrtc's convention of declaring small
// interfaces at point of use (see its webrtc package's track/connection
// abstractions) so any concrete VP8/VP9/H.264 or Opus binding can
// satisfy them.
package codec

import "image"

// Image is the decoded output of a ColorCodec and the input a
// SensorDevice produces per captured frame.
type Image = image.Image

// ColorCodec encodes/decodes the color video stream. keyframe forces a
// self-decodable frame; decode never needs a keyframe flag since the
// codec's own bitstream carries that information.
type ColorCodec interface {
	Encode(img Image, keyframe bool) ([]byte, error)
	Decode(data []byte) (Image, error)
}

// MaxAudioPacketContentSize bounds an AudioCodec's encoded output per
// spec.md §6.
const MaxAudioPacketContentSize = 1000

// AudioCodec encodes one frame_size-sample window of float PCM audio.
// Sample rate and channel count are out-of-band configuration (spec.md
// §6), not parameters of Encode.
type AudioCodec interface {
	Encode(pcm []float32, frameSize int) ([]byte, error)
}

// Calibration is the geometric data a SensorDevice exposes once at
// startup: camera intrinsics/extrinsics sufficient to build a
// shadow.Calibration, plus the resolution of the depth stream.
type Calibration struct {
	Width, Height int
	// UnitDepthRayX is the per-pixel unit-depth ray x-coordinate table
	// consumed directly by shadow.Calibration.UnitX.
	UnitDepthRayX []float32
	ColorCameraX  float32
}

// ImuSample is one inertial measurement accompanying a captured frame.
type ImuSample struct {
	AccelX, AccelY, AccelZ float32
	GyroX, GyroY, GyroZ    float32
}

// SensorFrame is one capture from a SensorDevice: a color image, a raw
// (not yet shadow-removed) depth image in millimeters, and an optional
// IMU sample.
type SensorFrame struct {
	Color Image
	Depth []int16
	Imu   *ImuSample
}

// SensorDevice is the capture-side hardware/simulator collaborator.
type SensorDevice interface {
	GetCalibration() (Calibration, error)
	// GetFrame returns the next captured frame, or ok == false if none
	// is currently available (a non-blocking poll, per spec.md §6's
	// Option-returning signature).
	GetFrame() (frame SensorFrame, ok bool, err error)
}

// Microphone is the capture-side audio collaborator of spec.md §6's
// "Audio sender" paragraph: a non-blocking source of raw float PCM
// samples, independent of SensorDevice since a capture host's
// microphone is typically a separate OS audio stream from its
// color/depth camera.
type Microphone interface {
	// ReadSamples returns whatever samples are currently available, or
	// ok == false if none are (a non-blocking poll).
	ReadSamples() (samples []float32, ok bool, err error)
}
