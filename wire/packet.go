// Package wire implements the sender/receiver packet codec of spec.md
// §4.4: a header prefix (session or receiver id + type byte) followed by
// a type-specific little-endian body, every packet bounded by
// MaxPacketSize.
//
// Grounded on
// _examples/original_source/cpp/src/modules/receiver_packet_classifier.h
// (receiver packet dispatch by type) and
// _examples/original_source/cpp/app/sender/video_packet_sender.h (video
// packet body shape); field layout mirrors kh_video_message.cpp's
// timestamp/keyframe/color-size/depth-size prefix reused at the fragment
// level.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MaxPacketSize is KH_PACKET_SIZE from spec.md §4.4/§6: the MTU ceiling
// every sender packet must respect.
const MaxPacketSize = 1500

// senderHeaderSize is session_id(4) + type(1).
const senderHeaderSize = 5

// receiverHeaderSize is receiver_id(4) + type(1).
const receiverHeaderSize = 5

// videoHeaderSize is frame_id(4) + packet_index(4) + packet_count(4),
// matching _examples/original_source/cpp/src/kh_frame_packet_collection.cpp's
// HEADER_SIZE = 17 once combined with senderHeaderSize (5): spec.md §4.4/
// §8 Property 3 fixes the total video-packet header at KH_PACKET_SIZE's
// 17-byte deduction, which only reconciles with a 4-byte (not 2-byte)
// packet_index/packet_count.
const videoHeaderSize = 12

// MaxFragmentSize is the largest video fragment payload that still fits
// in one packet: MaxPacketSize - senderHeaderSize - videoHeaderSize, i.e.
// spec.md's KH_PACKET_SIZE - 17.
const MaxFragmentSize = MaxPacketSize - senderHeaderSize - videoHeaderSize

// ErrTruncated is returned when a buffer is shorter than its header
// claims; spec.md §7 classifies this as a ProtocolViolation at the
// classifier layer (the packet is dropped, a counter incremented, no
// teardown).
var ErrTruncated = errors.New("wire: truncated packet")

// ErrUnknownType is returned when a type byte doesn't match any defined
// sender/receiver packet type.
var ErrUnknownType = errors.New("wire: unknown packet type")

// ErrTooLarge is returned by the encode helpers when a packet would
// exceed MaxPacketSize.
var ErrTooLarge = errors.New("wire: packet exceeds MaxPacketSize")

// SenderPacketType enumerates spec.md §4.4's sender packet types.
type SenderPacketType uint8

const (
	SenderHeartbeat SenderPacketType = 0
	SenderVideo     SenderPacketType = 1
	SenderParity    SenderPacketType = 2
	SenderAudio     SenderPacketType = 3
)

// ReceiverPacketType enumerates spec.md §4.4's receiver packet types.
type ReceiverPacketType uint8

const (
	ReceiverConnect   ReceiverPacketType = 0
	ReceiverHeartbeat ReceiverPacketType = 1
	ReceiverReport    ReceiverPacketType = 2
	ReceiverRequest   ReceiverPacketType = 3
)

// VideoPacket is one MTU-sized fragment of a frame message (spec.md §3).
type VideoPacket struct {
	SessionID   uint32
	FrameID     uint32
	PacketIndex uint32
	PacketCount uint32
	Fragment    []byte
}

// EncodeVideoPacket marshals p per spec.md §4.4. len(p.Fragment) must be
// <= MaxFragmentSize.
func EncodeVideoPacket(p VideoPacket) ([]byte, error) {
	if len(p.Fragment) > MaxFragmentSize {
		return nil, fmt.Errorf("%w: fragment %d bytes > %d", ErrTooLarge, len(p.Fragment), MaxFragmentSize)
	}
	buf := make([]byte, senderHeaderSize+videoHeaderSize+len(p.Fragment))
	binary.LittleEndian.PutUint32(buf[0:4], p.SessionID)
	buf[4] = byte(SenderVideo)
	binary.LittleEndian.PutUint32(buf[5:9], p.FrameID)
	binary.LittleEndian.PutUint32(buf[9:13], p.PacketIndex)
	binary.LittleEndian.PutUint32(buf[13:17], p.PacketCount)
	copy(buf[17:], p.Fragment)
	return buf, nil
}

// DecodeVideoPacket reverses EncodeVideoPacket on a body that has already
// been stripped of its session id/type header (see SplitSenderHeader).
func DecodeVideoPacket(sessionID uint32, body []byte) (VideoPacket, error) {
	if len(body) < videoHeaderSize {
		return VideoPacket{}, ErrTruncated
	}
	return VideoPacket{
		SessionID:   sessionID,
		FrameID:     binary.LittleEndian.Uint32(body[0:4]),
		PacketIndex: binary.LittleEndian.Uint32(body[4:8]),
		PacketCount: binary.LittleEndian.Uint32(body[8:12]),
		Fragment:    append([]byte(nil), body[12:]...),
	}, nil
}

// parityHeaderSize is frame_id(4) + group_start_index(2) + group_size(1).
const parityHeaderSize = 7

// ParityPacket is the XOR of up to XOR_MAX_GROUP_SIZE video fragment
// bodies (spec.md §3/§4.5).
type ParityPacket struct {
	SessionID       uint32
	FrameID         uint32
	GroupStartIndex uint16
	GroupSize       uint8
	Parity          []byte
}

// EncodeParityPacket marshals p per spec.md §4.4.
func EncodeParityPacket(p ParityPacket) ([]byte, error) {
	total := senderHeaderSize + parityHeaderSize + len(p.Parity)
	if total > MaxPacketSize {
		return nil, fmt.Errorf("%w: parity packet %d bytes", ErrTooLarge, total)
	}
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], p.SessionID)
	buf[4] = byte(SenderParity)
	binary.LittleEndian.PutUint32(buf[5:9], p.FrameID)
	binary.LittleEndian.PutUint16(buf[9:11], p.GroupStartIndex)
	buf[11] = p.GroupSize
	copy(buf[12:], p.Parity)
	return buf, nil
}

// DecodeParityPacket reverses EncodeParityPacket on a header-stripped
// body.
func DecodeParityPacket(sessionID uint32, body []byte) (ParityPacket, error) {
	if len(body) < parityHeaderSize {
		return ParityPacket{}, ErrTruncated
	}
	return ParityPacket{
		SessionID:       sessionID,
		FrameID:         binary.LittleEndian.Uint32(body[0:4]),
		GroupStartIndex: binary.LittleEndian.Uint16(body[4:6]),
		GroupSize:       body[6],
		Parity:          append([]byte(nil), body[7:]...),
	}, nil
}

// audioHeaderSize is frame_id(4).
const audioHeaderSize = 4

// AudioPacket carries one encoded audio frame (spec.md §4.4). Audio
// packets are fire-and-forget: no FEC, no retransmission (spec.md §4.6).
type AudioPacket struct {
	SessionID uint32
	FrameID   uint32
	Opus      []byte
}

// EncodeAudioPacket marshals p per spec.md §4.4.
func EncodeAudioPacket(p AudioPacket) ([]byte, error) {
	total := senderHeaderSize + audioHeaderSize + len(p.Opus)
	if total > MaxPacketSize {
		return nil, fmt.Errorf("%w: audio packet %d bytes", ErrTooLarge, total)
	}
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], p.SessionID)
	buf[4] = byte(SenderAudio)
	binary.LittleEndian.PutUint32(buf[5:9], p.FrameID)
	copy(buf[9:], p.Opus)
	return buf, nil
}

// DecodeAudioPacket reverses EncodeAudioPacket on a header-stripped body.
func DecodeAudioPacket(sessionID uint32, body []byte) (AudioPacket, error) {
	if len(body) < audioHeaderSize {
		return AudioPacket{}, ErrTruncated
	}
	return AudioPacket{
		SessionID: sessionID,
		FrameID:   binary.LittleEndian.Uint32(body[0:4]),
		Opus:      append([]byte(nil), body[4:]...),
	}, nil
}

// EncodeSenderHeartbeat marshals a heartbeat sender packet.
func EncodeSenderHeartbeat(sessionID uint32) []byte {
	buf := make([]byte, senderHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], sessionID)
	buf[4] = byte(SenderHeartbeat)
	return buf
}

// SplitSenderHeader parses the common sender packet prefix and returns
// the session id, type, and remaining body.
func SplitSenderHeader(packet []byte) (sessionID uint32, typ SenderPacketType, body []byte, err error) {
	if len(packet) < senderHeaderSize {
		return 0, 0, nil, ErrTruncated
	}
	sessionID = binary.LittleEndian.Uint32(packet[0:4])
	t := SenderPacketType(packet[4])
	switch t {
	case SenderHeartbeat, SenderVideo, SenderParity, SenderAudio:
	default:
		return 0, 0, nil, ErrUnknownType
	}
	return sessionID, t, packet[senderHeaderSize:], nil
}

// ConnectFlagVideo/ConnectFlagAudio are the bit0/bit1 flags in a Connect
// packet's body (spec.md §4.4).
const (
	ConnectFlagVideo uint8 = 1 << 0
	ConnectFlagAudio uint8 = 1 << 1
)

// ConnectPacket is a receiver's request to join a sender's stream.
type ConnectPacket struct {
	ReceiverID uint32
	WantsVideo bool
	WantsAudio bool
}

// EncodeConnectPacket marshals p per spec.md §4.4.
func EncodeConnectPacket(p ConnectPacket) []byte {
	buf := make([]byte, receiverHeaderSize+1)
	binary.LittleEndian.PutUint32(buf[0:4], p.ReceiverID)
	buf[4] = byte(ReceiverConnect)
	var flags uint8
	if p.WantsVideo {
		flags |= ConnectFlagVideo
	}
	if p.WantsAudio {
		flags |= ConnectFlagAudio
	}
	buf[5] = flags
	return buf
}

// DecodeConnectPacket reverses EncodeConnectPacket on a header-stripped
// body.
func DecodeConnectPacket(receiverID uint32, body []byte) (ConnectPacket, error) {
	if len(body) < 1 {
		return ConnectPacket{}, ErrTruncated
	}
	flags := body[0]
	return ConnectPacket{
		ReceiverID: receiverID,
		WantsVideo: flags&ConnectFlagVideo != 0,
		WantsAudio: flags&ConnectFlagAudio != 0,
	}, nil
}

// ReportPacket is a receiver's acknowledgement of a delivered frame
// (spec.md §3).
type ReportPacket struct {
	ReceiverID    uint32
	FrameID       uint32
	DecoderTimeMs float32
	FrameTimeMs   float32
}

// EncodeReportPacket marshals p per spec.md §4.4.
func EncodeReportPacket(p ReportPacket) []byte {
	buf := make([]byte, receiverHeaderSize+12)
	binary.LittleEndian.PutUint32(buf[0:4], p.ReceiverID)
	buf[4] = byte(ReceiverReport)
	binary.LittleEndian.PutUint32(buf[5:9], p.FrameID)
	binary.LittleEndian.PutUint32(buf[9:13], math.Float32bits(p.DecoderTimeMs))
	binary.LittleEndian.PutUint32(buf[13:17], math.Float32bits(p.FrameTimeMs))
	return buf
}

// DecodeReportPacket reverses EncodeReportPacket on a header-stripped
// body.
func DecodeReportPacket(receiverID uint32, body []byte) (ReportPacket, error) {
	if len(body) < 12 {
		return ReportPacket{}, ErrTruncated
	}
	return ReportPacket{
		ReceiverID:    receiverID,
		FrameID:       binary.LittleEndian.Uint32(body[0:4]),
		DecoderTimeMs: math.Float32frombits(binary.LittleEndian.Uint32(body[4:8])),
		FrameTimeMs:   math.Float32frombits(binary.LittleEndian.Uint32(body[8:12])),
	}, nil
}

// RequestPacket asks the sender to resend specific missing fragment
// indices of frame_id (spec.md §3).
type RequestPacket struct {
	ReceiverID     uint32
	FrameID        uint32
	PacketIndices  []uint16
}

// EncodeRequestPacket marshals p per spec.md §4.4.
func EncodeRequestPacket(p RequestPacket) ([]byte, error) {
	total := receiverHeaderSize + 6 + 2*len(p.PacketIndices)
	if total > MaxPacketSize {
		return nil, fmt.Errorf("%w: request packet %d bytes", ErrTooLarge, total)
	}
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], p.ReceiverID)
	buf[4] = byte(ReceiverRequest)
	binary.LittleEndian.PutUint32(buf[5:9], p.FrameID)
	binary.LittleEndian.PutUint16(buf[9:11], uint16(len(p.PacketIndices)))
	off := 11
	for _, idx := range p.PacketIndices {
		binary.LittleEndian.PutUint16(buf[off:off+2], idx)
		off += 2
	}
	return buf, nil
}

// DecodeRequestPacket reverses EncodeRequestPacket on a header-stripped
// body.
func DecodeRequestPacket(receiverID uint32, body []byte) (RequestPacket, error) {
	if len(body) < 6 {
		return RequestPacket{}, ErrTruncated
	}
	frameID := binary.LittleEndian.Uint32(body[0:4])
	count := binary.LittleEndian.Uint16(body[4:6])
	need := 6 + int(count)*2
	if len(body) < need {
		return RequestPacket{}, ErrTruncated
	}
	indices := make([]uint16, count)
	off := 6
	for i := range indices {
		indices[i] = binary.LittleEndian.Uint16(body[off : off+2])
		off += 2
	}
	return RequestPacket{ReceiverID: receiverID, FrameID: frameID, PacketIndices: indices}, nil
}

// EncodeReceiverHeartbeat marshals a heartbeat receiver packet.
func EncodeReceiverHeartbeat(receiverID uint32) []byte {
	buf := make([]byte, receiverHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], receiverID)
	buf[4] = byte(ReceiverHeartbeat)
	return buf
}

// SplitReceiverHeader parses the common receiver packet prefix and
// returns the receiver id, type, and remaining body.
func SplitReceiverHeader(packet []byte) (receiverID uint32, typ ReceiverPacketType, body []byte, err error) {
	if len(packet) < receiverHeaderSize {
		return 0, 0, nil, ErrTruncated
	}
	receiverID = binary.LittleEndian.Uint32(packet[0:4])
	t := ReceiverPacketType(packet[4])
	switch t {
	case ReceiverConnect, ReceiverHeartbeat, ReceiverReport, ReceiverRequest:
	default:
		return 0, 0, nil, ErrUnknownType
	}
	return receiverID, t, packet[receiverHeaderSize:], nil
}
