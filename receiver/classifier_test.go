package receiver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0remac/rgbdstream/wire"
)

func TestClassifyDatagramsSortsByType(t *testing.T) {
	video, err := wire.EncodeVideoPacket(wire.VideoPacket{SessionID: 1, FrameID: 1, PacketCount: 1, Fragment: []byte{1}})
	require.NoError(t, err)
	parity, err := wire.EncodeParityPacket(wire.ParityPacket{SessionID: 1, FrameID: 1, GroupSize: 1, Parity: []byte{1}})
	require.NoError(t, err)
	audio, err := wire.EncodeAudioPacket(wire.AudioPacket{SessionID: 1, FrameID: 2, Opus: []byte{9}})
	require.NoError(t, err)
	heartbeat := wire.EncodeSenderHeartbeat(1)

	set := ClassifyDatagrams([][]byte{video, parity, audio, heartbeat})

	assert.True(t, set.ReceivedAny)
	assert.Len(t, set.Video, 1)
	assert.Len(t, set.Parity, 1)
	assert.Len(t, set.Audio, 1)
	assert.True(t, set.SessionIDs[1])
}

func TestClassifyDatagramsDropsMalformed(t *testing.T) {
	set := ClassifyDatagrams([][]byte{{1, 2}})
	assert.False(t, set.ReceivedAny)
	assert.Empty(t, set.Video)
}
