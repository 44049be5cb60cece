// Grounded on
// _examples/original_source/cpp/apps/receiver/sender_packet_receiver.h:
// SenderPacketReceiver::receive drains the socket non-blockingly and
// sorts packets into video/parity/audio slices, ignoring heartbeats.
package receiver

import "github.com/n0remac/rgbdstream/wire"

// SenderPacketSet is the per-tick classification result, matching
// sender_packet_receiver.h's SenderPacketSet.
type SenderPacketSet struct {
	ReceivedAny bool
	Video       []wire.VideoPacket
	Parity      []wire.ParityPacket
	Audio       []wire.AudioPacket
	// SessionIDs seen this batch, for the session-mismatch check of
	// spec.md §4.8 (a receiver may see packets from at most one sender
	// session at a time; the caller compares these to its expected id).
	SessionIDs map[uint32]bool
}

// ClassifyDatagrams implements the sender-packet classifier of spec.md
// §4.7: dispatch each datagram's body to video_packets[]/parity_packets[]/
// audio_packets[] or ignore (heartbeat), per packet type. Malformed
// packets are dropped per spec.md §7's ProtocolViolation handling; they
// do not abort the batch.
func ClassifyDatagrams(datagrams [][]byte) SenderPacketSet {
	set := SenderPacketSet{SessionIDs: make(map[uint32]bool)}
	for _, data := range datagrams {
		sessionID, typ, body, err := wire.SplitSenderHeader(data)
		if err != nil {
			continue
		}
		set.ReceivedAny = true
		set.SessionIDs[sessionID] = true

		switch typ {
		case wire.SenderHeartbeat:
			// no-op, matches sender_packet_receiver.h's Heartbeat case
		case wire.SenderVideo:
			v, err := wire.DecodeVideoPacket(sessionID, body)
			if err == nil {
				set.Video = append(set.Video, v)
			}
		case wire.SenderParity:
			p, err := wire.DecodeParityPacket(sessionID, body)
			if err == nil {
				set.Parity = append(set.Parity, p)
			}
		case wire.SenderAudio:
			a, err := wire.DecodeAudioPacket(sessionID, body)
			if err == nil {
				set.Audio = append(set.Audio, a)
			}
		}
	}
	return set
}
