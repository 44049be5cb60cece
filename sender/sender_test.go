package sender

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0remac/rgbdstream/codec"
	"github.com/n0remac/rgbdstream/frame"
	"github.com/n0remac/rgbdstream/netio"
	"github.com/n0remac/rgbdstream/shadow"
	"github.com/n0remac/rgbdstream/trvl"
	"github.com/n0remac/rgbdstream/wire"
)

func TestNewSenderWiresAudio(t *testing.T) {
	sock, err := netio.Listen(":0")
	require.NoError(t, err)
	defer sock.Close()

	calib := shadow.Calibration{Width: 2, Height: 2, UnitX: make([]float32, 4), ColorCameraX: 50}
	s, err := NewSender(DefaultConfig(), 1, sock, &codec.FakeSensorDevice{}, &codec.FakeColorCodec{}, &codec.FakeAudioCodec{}, nil, calib)
	require.NoError(t, err)

	require.NotNil(t, s.Audio)
	assert.Equal(t, DefaultConfig().AudioFrameSize, s.Audio.FrameSize)
	assert.Nil(t, s.Microphone)
}

func newFragmentTestSender(t *testing.T) *Sender {
	t.Helper()
	remover, err := shadow.NewRemover(shadow.Calibration{Width: 2, Height: 2, UnitX: make([]float32, 4), ColorCameraX: 50})
	require.NoError(t, err)
	return &Sender{
		SessionID:      1,
		Depth:          trvl.NewEncoder(2, 2),
		Shadow:         remover,
		Registry:       NewRegistry(),
		Retransmission: NewRetransmissionStore(),
	}
}

func TestFragmentAndParityRoundtrip(t *testing.T) {
	s := newFragmentTestSender(t)
	msg := frame.Message{
		FrameID:     7,
		TimestampMs: 100,
		Keyframe:    true,
		Color:       make([]byte, wire.MaxFragmentSize*2+10),
		Depth:       []byte{1, 2, 3},
	}
	for i := range msg.Color {
		msg.Color[i] = byte(i)
	}

	video, parity, err := s.FragmentAndParity(msg)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(video), 3)
	assert.GreaterOrEqual(t, len(parity), 1)

	// reassemble and verify the body roundtrips through frame.Unmarshal
	var reassembled []byte
	for _, pkt := range video {
		_, typ, body, err := wire.SplitSenderHeader(pkt)
		require.NoError(t, err)
		assert.Equal(t, wire.SenderVideo, typ)
		v, err := wire.DecodeVideoPacket(s.SessionID, body)
		require.NoError(t, err)
		reassembled = append(reassembled, v.Fragment...)
	}

	got, err := frame.Unmarshal(msg.FrameID, reassembled)
	require.NoError(t, err)
	assert.Equal(t, msg.Color, got.Color)
	assert.Equal(t, msg.Depth, got.Depth)
}

func TestTransmitInsertsRetransmissionEntry(t *testing.T) {
	s := newFragmentTestSender(t)
	now := time.Now()

	err := s.Transmit(5, [][]byte{{1, 2}}, [][]byte{{3, 4}}, now)
	require.NoError(t, err)

	entry, ok := s.Retransmission.Get(5)
	require.True(t, ok)
	assert.Equal(t, [][]byte{{1, 2}}, entry.VideoPackets)
	assert.Equal(t, [][]byte{{3, 4}}, entry.ParityPackets)
}

func TestSendHeartbeatReachesRegisteredReceivers(t *testing.T) {
	senderSock, err := netio.Listen(":0")
	require.NoError(t, err)
	defer senderSock.Close()

	receiverSock, err := netio.Listen(":0")
	require.NoError(t, err)
	defer receiverSock.Close()

	s := newFragmentTestSender(t)
	s.Socket = senderSock
	now := time.Now()
	s.Registry.Upsert(1, receiverSock.LocalAddr(), true, false, now)

	require.NoError(t, s.SendHeartbeat(receiverSock.LocalAddr()))

	datagrams, err := receiverSock.ReceiveBatch(wire.MaxPacketSize)
	require.NoError(t, err)
	require.Len(t, datagrams, 1)

	sessionID, typ, body, err := wire.SplitSenderHeader(datagrams[0].Bytes)
	require.NoError(t, err)
	assert.Equal(t, s.SessionID, sessionID)
	assert.Equal(t, wire.SenderHeartbeat, typ)
	assert.Empty(t, body)
}

func TestCleanupRetransmissionStoreUsesMinAck(t *testing.T) {
	s := newFragmentTestSender(t)
	now := time.Now()
	s.Registry.Upsert(1, addr(100), true, false, now)
	s.Registry.Ack(1, 5, now)

	s.Retransmission.Insert(3, RetransmissionEntry{CreationTime: now})
	s.Retransmission.Insert(10, RetransmissionEntry{CreationTime: now})

	s.CleanupRetransmissionStore(now)

	_, ok := s.Retransmission.Get(3)
	assert.False(t, ok)
	_, ok = s.Retransmission.Get(10)
	assert.True(t, ok)
}
