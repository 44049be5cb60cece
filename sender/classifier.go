// Grounded on
// _examples/original_source/cpp/src/modules/receiver_packet_classifier.h:
// Connect packets are always accepted regardless of known-receiver
// status; every other packet type is silently dropped if its
// receiver_id isn't already a known RemoteReceiver (spec.md §4.8,
// SPEC_FULL.md supplement 4).
package sender

import (
	"net"
	"time"

	"github.com/n0remac/rgbdstream/wire"
)

// FeedbackEvent is the result of classifying one receiver packet,
// returned by HandleReceiverPacket so the caller (net_recv_feedback
// task) can react — e.g. resend requested packets from the
// RetransmissionStore, which the classifier itself does not own.
type FeedbackEvent struct {
	Request *wire.RequestPacket
}

// HandleReceiverPacket dispatches one receiver packet per spec.md §4.6
// activity 4 / §4.8. addr is the UDP source address, used to
// (re)populate RemoteReceiver.Endpoint on Connect.
func (s *Sender) HandleReceiverPacket(data []byte, addr *net.UDPAddr, now time.Time) (FeedbackEvent, error) {
	receiverID, typ, body, err := wire.SplitReceiverHeader(data)
	if err != nil {
		return FeedbackEvent{}, err
	}

	if typ != wire.ReceiverConnect && !s.Registry.Known(receiverID) {
		return FeedbackEvent{}, nil
	}

	switch typ {
	case wire.ReceiverConnect:
		pkt, err := wire.DecodeConnectPacket(receiverID, body)
		if err != nil {
			return FeedbackEvent{}, err
		}
		s.Registry.Upsert(receiverID, addr, pkt.WantsVideo, pkt.WantsAudio, now)

	case wire.ReceiverHeartbeat:
		s.Registry.Touch(receiverID, now)

	case wire.ReceiverReport:
		pkt, err := wire.DecodeReportPacket(receiverID, body)
		if err != nil {
			return FeedbackEvent{}, err
		}
		s.Registry.Ack(receiverID, pkt.FrameID, now)

	case wire.ReceiverRequest:
		pkt, err := wire.DecodeRequestPacket(receiverID, body)
		if err != nil {
			return FeedbackEvent{}, err
		}
		s.Registry.Touch(receiverID, now)
		return FeedbackEvent{Request: &pkt}, nil
	}

	return FeedbackEvent{}, nil
}

// ResendRequested resends the video packets whose indices are listed in
// req from the retransmission store, skipping silently if the frame has
// been evicted (spec.md §4.6 activity 4). Parity packets are not resent.
func (s *Sender) ResendRequested(req wire.RequestPacket, to *net.UDPAddr) error {
	entry, ok := s.Retransmission.Get(req.FrameID)
	if !ok {
		return nil
	}
	wanted := make(map[uint32]bool, len(req.PacketIndices))
	for _, idx := range req.PacketIndices {
		wanted[uint32(idx)] = true
	}
	for _, pkt := range entry.VideoPackets {
		_, typ, body, err := wire.SplitSenderHeader(pkt)
		if err != nil || typ != wire.SenderVideo {
			continue
		}
		v, err := wire.DecodeVideoPacket(s.SessionID, body)
		if err != nil {
			continue
		}
		if wanted[v.PacketIndex] {
			if err := s.Socket.Send(pkt, to); err != nil {
				return err
			}
		}
	}
	return nil
}
