package netio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveRoundtrip(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()

	b, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Send([]byte("hello"), b.LocalAddr()))

	deadline := time.Now().Add(2 * time.Second)
	var got []Datagram
	for time.Now().Before(deadline) {
		datagrams, err := b.ReceiveBatch(1500)
		require.NoError(t, err)
		if len(datagrams) > 0 {
			got = datagrams
			break
		}
	}
	require.Len(t, got, 1)
	assert.Equal(t, []byte("hello"), got[0].Bytes)
}

func TestDrainReturnsEmptyWhenIdle(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()

	datagrams, err := a.ReceiveBatch(1500)
	require.NoError(t, err)
	assert.Empty(t, datagrams)
}

func TestDrainBoundsBatchSize(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()

	b, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	for i := 0; i < MaxBatchPerTick+50; i++ {
		_ = b.Send([]byte{byte(i)}, a.LocalAddr())
	}

	time.Sleep(50 * time.Millisecond)
	datagrams, err := a.ReceiveBatch(1500)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(datagrams), MaxBatchPerTick)
}
