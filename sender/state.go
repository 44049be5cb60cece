// Package sender implements the sender pipeline of spec.md §4.6: capture
// + encode, fragment + parity, transmit, and receiver-feedback handling,
// plus the per-remote-receiver state and retransmission store those
// activities share.
//
// Grounded on _examples/original_source/cpp/src/sender/remote_receiver.h
// (RemoteReceiver fields and INITIAL_VIDEO_FRAME_ID=-1 sentinel) and
// _examples/original_source/cpp/app/sender/receiver_state.h; the
// mutex-guarded registry follows the Hub pattern in
// _examples/n0remac-robot-webrtc/websocket.go (register/unregister maps
// behind a single sync.Mutex, touched from one owning goroutine's run
// loop), generalized from websocket clients to RemoteReceivers.
package sender

import (
	"net"
	"sync"
	"time"

	"github.com/n0remac/rgbdstream/ids"
)

// InitialVideoFrameID is RemoteReceiver.INITIAL_VIDEO_FRAME_ID from
// remote_receiver.h: no report has been received yet.
const InitialVideoFrameID int64 = -1

// RemoteReceiver is the sender-side per-remote state of spec.md §3.
type RemoteReceiver struct {
	Endpoint       *net.UDPAddr
	ReceiverID     uint32
	VideoRequested bool
	AudioRequested bool
	LastAckFrameID int64
	LastPacketTime time.Time
	// CorrelationID ties every log line about this RemoteReceiver's
	// lifetime together; it is minted fresh on each Connect (so a
	// reconnect gets a new correlation id) and never appears on the wire.
	CorrelationID string
}

// Registry is the mutex-guarded map[receiver_id]*RemoteReceiver referred
// to in spec.md §3 as "sender-side per-remote state". It is intended to
// be owned by the net_recv_feedback task and read by capture_encode/
// net_send for the transmit fan-out, matching §5's "shared resources ...
// owned by exactly one task" with a mutex standing in for a
// cross-task queue where a simple read-mostly map is the natural Go
// idiom (see DESIGN.md).
type Registry struct {
	mu        sync.Mutex
	receivers map[uint32]*RemoteReceiver
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{receivers: make(map[uint32]*RemoteReceiver)}
}

// Upsert handles a Connect packet: creates the RemoteReceiver if new,
// or resets last_ack_frame_id and refreshes the endpoint/flags if
// known, per spec.md §4.6 activity 4.
func (r *Registry) Upsert(receiverID uint32, endpoint *net.UDPAddr, wantsVideo, wantsAudio bool, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[receiverID] = &RemoteReceiver{
		Endpoint:       endpoint,
		ReceiverID:     receiverID,
		VideoRequested: wantsVideo,
		AudioRequested: wantsAudio,
		LastAckFrameID: InitialVideoFrameID,
		LastPacketTime: now,
		CorrelationID:  ids.CorrelationID(),
	}
}

// Touch refreshes last_packet_time for receiverID if known (Heartbeat,
// or any other valid receiver packet).
func (r *Registry) Touch(receiverID uint32, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rr, ok := r.receivers[receiverID]; ok {
		rr.LastPacketTime = now
	}
}

// Ack applies a Report{frame_id}: last_ack_frame_id advances only
// forward, and an out-of-order report (frame_id <= last_ack_frame_id)
// is discarded per spec.md §4.6. Returns false if receiverID is unknown
// or the report was discarded as out of order.
func (r *Registry) Ack(receiverID uint32, frameID uint32, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rr, ok := r.receivers[receiverID]
	if !ok {
		return false
	}
	rr.LastPacketTime = now
	if int64(frameID) <= rr.LastAckFrameID {
		return false
	}
	rr.LastAckFrameID = int64(frameID)
	return true
}

// Known reports whether receiverID has an active RemoteReceiver, used by
// the classifier to silently ignore non-Connect packets from unknown
// receivers per spec.md §4.8.
func (r *Registry) Known(receiverID uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.receivers[receiverID]
	return ok
}

// Get returns a copy of the RemoteReceiver for receiverID, if known.
func (r *Registry) Get(receiverID uint32) (RemoteReceiver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rr, ok := r.receivers[receiverID]
	if !ok {
		return RemoteReceiver{}, false
	}
	return *rr, true
}

// All returns a snapshot of every known RemoteReceiver, regardless of
// video/audio flags, for the heartbeat broadcast of spec.md §4.6's
// "Report emission" paragraph (mirrored on the sender side).
func (r *Registry) All() []RemoteReceiver {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RemoteReceiver, 0, len(r.receivers))
	for _, rr := range r.receivers {
		out = append(out, *rr)
	}
	return out
}

// LiveVideoTargets returns a snapshot of every RemoteReceiver with
// VideoRequested == true, for the transmit step of spec.md §4.6 activity
// 3.
func (r *Registry) LiveVideoTargets() []RemoteReceiver {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RemoteReceiver, 0, len(r.receivers))
	for _, rr := range r.receivers {
		if rr.VideoRequested {
			out = append(out, *rr)
		}
	}
	return out
}

// LiveAudioTargets returns a snapshot of every RemoteReceiver with
// AudioRequested == true, for the fire-and-forget audio fan-out of
// spec.md §4.6's "Audio sender" paragraph.
func (r *Registry) LiveAudioTargets() []RemoteReceiver {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RemoteReceiver, 0, len(r.receivers))
	for _, rr := range r.receivers {
		if rr.AudioRequested {
			out = append(out, *rr)
		}
	}
	return out
}

// MinLastAckFrameID returns the minimum last_ack_frame_id across all
// live receivers, used by retransmission store cleanup (spec.md §4.6).
// If there are no receivers, ok is false.
func (r *Registry) MinLastAckFrameID() (min int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	first := true
	for _, rr := range r.receivers {
		if first || rr.LastAckFrameID < min {
			min = rr.LastAckFrameID
			first = false
		}
	}
	return min, !first
}

// SweepTimeouts removes every RemoteReceiver whose last_packet_time is
// older than timeout, per spec.md §3's RemoteReceiver lifecycle
// ("destroyed otherwise") and §5's PeerLost error kind. It returns the
// removed RemoteReceivers (including their CorrelationID, for logging).
func (r *Registry) SweepTimeouts(now time.Time, timeout time.Duration) []RemoteReceiver {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []RemoteReceiver
	for id, rr := range r.receivers {
		if now.Sub(rr.LastPacketTime) > timeout {
			removed = append(removed, *rr)
			delete(r.receivers, id)
		}
	}
	return removed
}
