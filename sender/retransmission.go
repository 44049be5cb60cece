package sender

import (
	"sync"
	"time"
)

// RetransmissionEntry is one frame's retained packet set, per spec.md
// §3's "sender-side retransmission store".
type RetransmissionEntry struct {
	CreationTime  time.Time
	VideoPackets  [][]byte
	ParityPackets [][]byte
}

// RetransmissionStore is the mutex-guarded map[frame_id]RetransmissionEntry
// of spec.md §3, grounded on the same RemoteReceiver-adjacent ownership
// model as Registry (see state.go's doc comment) and on
// _examples/original_source/cpp/app/sender/video_packet_sender.h's
// video_packet_sets_/video_frame_send_times_ maps, which this type
// merges into one entry per frame.
type RetransmissionStore struct {
	mu      sync.Mutex
	entries map[uint32]RetransmissionEntry
}

// NewRetransmissionStore returns an empty store.
func NewRetransmissionStore() *RetransmissionStore {
	return &RetransmissionStore{entries: make(map[uint32]RetransmissionEntry)}
}

// Insert records a newly sent frame's packet set.
func (s *RetransmissionStore) Insert(frameID uint32, entry RetransmissionEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[frameID] = entry
}

// Get returns the retained packet set for frameID, or ok=false if it
// has been evicted — the Request-handling path is expected to "skip
// silently if frame evicted" per spec.md §4.6.
func (s *RetransmissionStore) Get(frameID uint32) (RetransmissionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[frameID]
	return e, ok
}

// Evict removes every entry with frame_id <= minAck (when acked is
// true) or whose age exceeds retention, per spec.md §4.6's "Retransmission
// store cleanup".
func (s *RetransmissionStore) Evict(now time.Time, minAck int64, acked bool, retention time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for frameID, e := range s.entries {
		if acked && int64(frameID) <= minAck {
			delete(s.entries, frameID)
			continue
		}
		if now.Sub(e.CreationTime) > retention {
			delete(s.entries, frameID)
		}
	}
}

// Len reports the number of retained frames, for tests/metrics.
func (s *RetransmissionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
