package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestVideoPacketRoundtrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := VideoPacket{
			SessionID:   rapid.Uint32().Draw(t, "session_id"),
			FrameID:     rapid.Uint32().Draw(t, "frame_id"),
			PacketIndex: rapid.Uint32().Draw(t, "packet_index"),
			PacketCount: rapid.Uint32().Draw(t, "packet_count"),
			Fragment:    rapid.SliceOfN(rapid.Byte(), 0, MaxFragmentSize).Draw(t, "fragment"),
		}

		data, err := EncodeVideoPacket(p)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(data), MaxPacketSize)

		sessionID, typ, body, err := SplitSenderHeader(data)
		require.NoError(t, err)
		assert.Equal(t, p.SessionID, sessionID)
		assert.Equal(t, SenderVideo, typ)

		got, err := DecodeVideoPacket(sessionID, body)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})
}

func TestVideoPacketTooLarge(t *testing.T) {
	_, err := EncodeVideoPacket(VideoPacket{Fragment: make([]byte, MaxFragmentSize+1)})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestParityPacketRoundtrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := ParityPacket{
			SessionID:       rapid.Uint32().Draw(t, "session_id"),
			FrameID:         rapid.Uint32().Draw(t, "frame_id"),
			GroupStartIndex: rapid.Uint16().Draw(t, "group_start"),
			GroupSize:       uint8(rapid.IntRange(0, 5).Draw(t, "group_size")),
			Parity:          rapid.SliceOfN(rapid.Byte(), 0, MaxFragmentSize).Draw(t, "parity"),
		}

		data, err := EncodeParityPacket(p)
		require.NoError(t, err)

		sessionID, typ, body, err := SplitSenderHeader(data)
		require.NoError(t, err)
		assert.Equal(t, SenderParity, typ)

		got, err := DecodeParityPacket(sessionID, body)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})
}

func TestAudioPacketRoundtrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := AudioPacket{
			SessionID: rapid.Uint32().Draw(t, "session_id"),
			FrameID:   rapid.Uint32().Draw(t, "frame_id"),
			Opus:      rapid.SliceOf(rapid.Byte()).Draw(t, "opus"),
		}
		data, err := EncodeAudioPacket(p)
		require.NoError(t, err)

		sessionID, typ, body, err := SplitSenderHeader(data)
		require.NoError(t, err)
		assert.Equal(t, SenderAudio, typ)

		got, err := DecodeAudioPacket(sessionID, body)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})
}

func TestSenderHeartbeatRoundtrip(t *testing.T) {
	data := EncodeSenderHeartbeat(42)
	sessionID, typ, body, err := SplitSenderHeader(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), sessionID)
	assert.Equal(t, SenderHeartbeat, typ)
	assert.Empty(t, body)
}

func TestSplitSenderHeaderTruncated(t *testing.T) {
	_, _, _, err := SplitSenderHeader([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestSplitSenderHeaderUnknownType(t *testing.T) {
	_, _, _, err := SplitSenderHeader([]byte{1, 0, 0, 0, 99})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestConnectPacketRoundtrip(t *testing.T) {
	for _, want := range []ConnectPacket{
		{ReceiverID: 7, WantsVideo: true, WantsAudio: false},
		{ReceiverID: 8, WantsVideo: false, WantsAudio: true},
		{ReceiverID: 9, WantsVideo: true, WantsAudio: true},
		{ReceiverID: 10, WantsVideo: false, WantsAudio: false},
	} {
		data := EncodeConnectPacket(want)
		receiverID, typ, body, err := SplitReceiverHeader(data)
		require.NoError(t, err)
		assert.Equal(t, want.ReceiverID, receiverID)
		assert.Equal(t, ReceiverConnect, typ)

		got, err := DecodeConnectPacket(receiverID, body)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReportPacketRoundtrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := ReportPacket{
			ReceiverID:    rapid.Uint32().Draw(t, "receiver_id"),
			FrameID:       rapid.Uint32().Draw(t, "frame_id"),
			DecoderTimeMs: rapid.Float32().Draw(t, "decoder_time_ms"),
			FrameTimeMs:   rapid.Float32().Draw(t, "frame_time_ms"),
		}
		data := EncodeReportPacket(p)
		receiverID, typ, body, err := SplitReceiverHeader(data)
		require.NoError(t, err)
		assert.Equal(t, ReceiverReport, typ)

		got, err := DecodeReportPacket(receiverID, body)
		require.NoError(t, err)
		assert.Equal(t, p.ReceiverID, got.ReceiverID)
		assert.Equal(t, p.FrameID, got.FrameID)
		if p.DecoderTimeMs == p.DecoderTimeMs {
			assert.Equal(t, p.DecoderTimeMs, got.DecoderTimeMs)
		}
		if p.FrameTimeMs == p.FrameTimeMs {
			assert.Equal(t, p.FrameTimeMs, got.FrameTimeMs)
		}
	})
}

func TestRequestPacketRoundtrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := RequestPacket{
			ReceiverID:    rapid.Uint32().Draw(t, "receiver_id"),
			FrameID:       rapid.Uint32().Draw(t, "frame_id"),
			PacketIndices: rapid.SliceOfN(rapid.Uint16(), 0, 32).Draw(t, "indices"),
		}
		data, err := EncodeRequestPacket(p)
		require.NoError(t, err)

		receiverID, typ, body, err := SplitReceiverHeader(data)
		require.NoError(t, err)
		assert.Equal(t, ReceiverRequest, typ)

		got, err := DecodeRequestPacket(receiverID, body)
		require.NoError(t, err)
		assert.Equal(t, p.ReceiverID, got.ReceiverID)
		assert.Equal(t, p.FrameID, got.FrameID)
		assert.Equal(t, p.PacketIndices, got.PacketIndices)
	})
}

func TestRequestPacketTruncated(t *testing.T) {
	_, err := DecodeRequestPacket(1, []byte{1, 2})
	assert.ErrorIs(t, err, ErrTruncated)

	good, err := EncodeRequestPacket(RequestPacket{ReceiverID: 1, FrameID: 2, PacketIndices: []uint16{3, 4, 5}})
	require.NoError(t, err)
	_, _, body, err := SplitReceiverHeader(good)
	require.NoError(t, err)
	_, err = DecodeRequestPacket(1, body[:len(body)-1])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReceiverHeartbeatRoundtrip(t *testing.T) {
	data := EncodeReceiverHeartbeat(42)
	receiverID, typ, body, err := SplitReceiverHeader(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), receiverID)
	assert.Equal(t, ReceiverHeartbeat, typ)
	assert.Empty(t, body)
}

func TestSplitReceiverHeaderTruncated(t *testing.T) {
	_, _, _, err := SplitReceiverHeader([]byte{1, 2})
	assert.ErrorIs(t, err, ErrTruncated)
}
