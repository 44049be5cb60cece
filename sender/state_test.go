package sender

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}
}

func TestRegistryUpsertResetsAck(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Upsert(1, addr(100), true, false, now)
	r.Ack(1, 5, now)

	rr, ok := r.Get(1)
	assert.True(t, ok)
	assert.EqualValues(t, 5, rr.LastAckFrameID)

	r.Upsert(1, addr(101), true, true, now)
	rr, ok = r.Get(1)
	assert.True(t, ok)
	assert.Equal(t, InitialVideoFrameID, rr.LastAckFrameID)
	assert.True(t, rr.AudioRequested)
}

func TestRegistryAckDiscardsOutOfOrder(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Upsert(1, addr(100), true, false, now)

	assert.True(t, r.Ack(1, 10, now))
	assert.False(t, r.Ack(1, 10, now))
	assert.False(t, r.Ack(1, 5, now))
	assert.True(t, r.Ack(1, 11, now))
}

func TestRegistryAckUnknownReceiver(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Ack(99, 1, time.Now()))
}

func TestRegistryKnown(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Known(1))
	r.Upsert(1, addr(100), true, false, time.Now())
	assert.True(t, r.Known(1))
}

func TestRegistryLiveVideoTargets(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Upsert(1, addr(100), true, false, now)
	r.Upsert(2, addr(101), false, true, now)
	targets := r.LiveVideoTargets()
	assert.Len(t, targets, 1)
	assert.EqualValues(t, 1, targets[0].ReceiverID)
}

func TestRegistryLiveAudioTargets(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Upsert(1, addr(100), true, false, now)
	r.Upsert(2, addr(101), false, true, now)
	targets := r.LiveAudioTargets()
	assert.Len(t, targets, 1)
	assert.EqualValues(t, 2, targets[0].ReceiverID)
}

func TestRegistryMinLastAckFrameID(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	_, ok := r.MinLastAckFrameID()
	assert.False(t, ok)

	r.Upsert(1, addr(100), true, false, now)
	r.Upsert(2, addr(101), true, false, now)
	r.Ack(1, 10, now)
	r.Ack(2, 3, now)

	min, ok := r.MinLastAckFrameID()
	assert.True(t, ok)
	assert.EqualValues(t, 3, min)
}

func TestRegistrySweepTimeouts(t *testing.T) {
	r := NewRegistry()
	old := time.Now().Add(-10 * time.Second)
	r.Upsert(1, addr(100), true, false, old)
	r.Upsert(2, addr(101), true, false, time.Now())

	removed := r.SweepTimeouts(time.Now(), 5*time.Second)
	require.Len(t, removed, 1)
	assert.EqualValues(t, 1, removed[0].ReceiverID)
	assert.NotEmpty(t, removed[0].CorrelationID)
	assert.False(t, r.Known(1))
	assert.True(t, r.Known(2))
}

func TestRetransmissionStoreInsertGetEvict(t *testing.T) {
	s := NewRetransmissionStore()
	now := time.Now()
	s.Insert(1, RetransmissionEntry{CreationTime: now, VideoPackets: [][]byte{{1}}})
	s.Insert(2, RetransmissionEntry{CreationTime: now, VideoPackets: [][]byte{{2}}})

	_, ok := s.Get(1)
	assert.True(t, ok)

	s.Evict(now, 1, true, time.Hour)
	_, ok = s.Get(1)
	assert.False(t, ok, "frame_id <= min ack should be evicted")
	_, ok = s.Get(2)
	assert.True(t, ok)
}

func TestRetransmissionStoreEvictsByAge(t *testing.T) {
	s := NewRetransmissionStore()
	old := time.Now().Add(-10 * time.Second)
	s.Insert(1, RetransmissionEntry{CreationTime: old})

	s.Evict(time.Now(), -1, false, 3*time.Second)
	_, ok := s.Get(1)
	assert.False(t, ok)
}

func TestRetransmissionStoreGetMissingIsSilent(t *testing.T) {
	s := NewRetransmissionStore()
	_, ok := s.Get(42)
	assert.False(t, ok)
}
