package sender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0remac/rgbdstream/codec"
)

func TestAudioRingOverwritesOldestWhenFull(t *testing.T) {
	r := NewAudioRing(4)
	r.Push([]float32{1, 2, 3, 4})
	r.Push([]float32{5})

	samples, ok := r.PopFrame(4)
	require.True(t, ok)
	assert.Equal(t, []float32{2, 3, 4, 5}, samples)
}

func TestAudioRingPopFrameInsufficientSamples(t *testing.T) {
	r := NewAudioRing(8)
	r.Push([]float32{1, 2})
	_, ok := r.PopFrame(4)
	assert.False(t, ok)
}

func TestAudioSenderDrainEncodesAvailableFrames(t *testing.T) {
	ring := NewAudioRing(16)
	ring.Push([]float32{1, 2, 3, 4, 5, 6, 7, 8})

	sender := &AudioSender{
		Ring:      ring,
		Codec:     &codec.FakeAudioCodec{},
		FrameSize: 4,
		SessionID: 9,
	}

	packets, err := sender.Drain()
	require.NoError(t, err)
	require.Len(t, packets, 2)
	assert.EqualValues(t, 0, packets[0].FrameID)
	assert.EqualValues(t, 1, packets[1].FrameID)
	assert.EqualValues(t, 9, packets[0].SessionID)
}
