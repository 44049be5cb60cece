// Grounded on spec.md §4.6's four sender activities and §5's cooperative
// sender tasks. Run joins its goroutines with golang.org/x/sync/errgroup,
// which this repo adds as the idiomatic Go substitute for the reference's
// cooperative single-thread event loop (see DESIGN.md): runCaptureEncode
// (capture, encode, fragment and transmit in one loop), runNetRecvFeedback
// and runHeartbeat, plus runAudioSend when a Microphone is supplied. There
// is no separate net_send task and no queue between capture and transmit.
package sender

import (
	"context"
	"log"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/n0remac/rgbdstream/codec"
	"github.com/n0remac/rgbdstream/fec"
	"github.com/n0remac/rgbdstream/frame"
	"github.com/n0remac/rgbdstream/ids"
	"github.com/n0remac/rgbdstream/netio"
	"github.com/n0remac/rgbdstream/shadow"
	"github.com/n0remac/rgbdstream/trvl"
	"github.com/n0remac/rgbdstream/wire"
)

// Config carries the tunables named in spec.md §6's "Constants
// (recommended defaults)".
type Config struct {
	KeyframeInterval   int
	ReceiverTimeout    time.Duration
	RetentionTimeout   time.Duration
	CaptureTickPeriod  time.Duration
	NetTickPeriod      time.Duration
	HeartbeatInterval  time.Duration
	AudioFrameSize     int
	AudioRingCapacity  int
}

// DefaultConfig returns the constants recommended by spec.md §6.
func DefaultConfig() Config {
	return Config{
		KeyframeInterval:  30,
		ReceiverTimeout:   5 * time.Second,
		RetentionTimeout:  3 * time.Second,
		CaptureTickPeriod: 33 * time.Millisecond,
		NetTickPeriod:     time.Millisecond,
		HeartbeatInterval: time.Second,
		AudioFrameSize:    960,
		AudioRingCapacity: 960 * 8,
	}
}

// Sender owns every piece of sender-side state named in spec.md §3/§4.6
// and wires the cooperative tasks of §5, extended with an audio task.
type Sender struct {
	Config Config

	SessionID uint32
	Socket    *netio.Socket
	Device    codec.SensorDevice
	Color     codec.ColorCodec
	Depth     *trvl.Encoder
	Shadow    *shadow.Remover
	Clock     ids.Clock
	FrameIDs  ids.FrameCounter

	Registry       *Registry
	Retransmission *RetransmissionStore
	Microphone     codec.Microphone
	Audio          *AudioSender
}

// NewSender wires together a Sender from its collaborators. calib is
// used to size the depth encoder and shadow remover. mic may be nil, in
// which case the sender never emits audio packets.
func NewSender(cfg Config, sessionID uint32, sock *netio.Socket, device codec.SensorDevice, color codec.ColorCodec, audioCodec codec.AudioCodec, mic codec.Microphone, shadowCalib shadow.Calibration) (*Sender, error) {
	remover, err := shadow.NewRemover(shadowCalib)
	if err != nil {
		return nil, err
	}
	return &Sender{
		Config:     cfg,
		SessionID:  sessionID,
		Socket:     sock,
		Device:     device,
		Color:      color,
		Depth:      trvl.NewEncoder(shadowCalib.Width, shadowCalib.Height),
		Shadow:     remover,
		Clock:      ids.NewClock(time.Now()),
		Registry:   NewRegistry(),
		Retransmission: NewRetransmissionStore(),
		Microphone: mic,
		Audio: &AudioSender{
			Ring:      NewAudioRing(cfg.AudioRingCapacity),
			Codec:     audioCodec,
			FrameSize: cfg.AudioFrameSize,
			SessionID: sessionID,
		},
	}, nil
}

// CaptureAndEncode implements spec.md §4.6 activity 1: pull one sensor
// frame, shadow-remove its depth, encode depth and color (promoting to
// keyframe on the configured interval or on a depth codec failure), and
// build the resulting frame.Message. ok is false if the device had no
// frame ready.
func (s *Sender) CaptureAndEncode(now time.Time) (msg frame.Message, ok bool, err error) {
	sf, ok, err := s.Device.GetFrame()
	if err != nil || !ok {
		return frame.Message{}, ok, err
	}

	frameID := s.FrameIDs.Next()
	keyframe := int(frameID)%s.Config.KeyframeInterval == 0

	if err := s.Shadow.Apply(sf.Depth); err != nil {
		return frame.Message{}, false, err
	}

	depthBytes, err := s.Depth.Compress(sf.Depth, keyframe)
	if err != nil {
		// CompressionGrewInput (spec.md §7): promote to keyframe and
		// retry once, matching trvl's own keyframe-reset contract.
		keyframe = true
		depthBytes, err = s.Depth.Compress(sf.Depth, true)
		if err != nil {
			return frame.Message{}, false, err
		}
	}

	colorBytes, err := s.Color.Encode(sf.Color, keyframe)
	if err != nil {
		return frame.Message{}, false, err
	}

	return frame.Message{
		FrameID:     frameID,
		TimestampMs: s.Clock.ElapsedMs(now),
		Keyframe:    keyframe,
		Color:       colorBytes,
		Depth:       depthBytes,
	}, true, nil
}

// FragmentAndParity implements spec.md §4.6 activity 2: slice msg into
// MTU-sized video packets and synthesize parity packets over them per
// §4.5, returning the raw wire bytes of each.
func (s *Sender) FragmentAndParity(msg frame.Message) (video [][]byte, parity [][]byte, err error) {
	body := frame.Marshal(msg)

	var fragments [][]byte
	for off := 0; off < len(body); off += wire.MaxFragmentSize {
		end := off + wire.MaxFragmentSize
		if end > len(body) {
			end = len(body)
		}
		fragments = append(fragments, body[off:end])
	}
	if len(fragments) == 0 {
		fragments = [][]byte{{}}
	}

	video = make([][]byte, len(fragments))
	for i, frag := range fragments {
		pkt, err := wire.EncodeVideoPacket(wire.VideoPacket{
			SessionID:   s.SessionID,
			FrameID:     msg.FrameID,
			PacketIndex: uint32(i),
			PacketCount: uint32(len(fragments)),
			Fragment:    frag,
		})
		if err != nil {
			return nil, nil, err
		}
		video[i] = pkt
	}

	parityBodies := fec.Encode(fragments)
	parity = make([][]byte, len(parityBodies))
	for i, body := range parityBodies {
		start := i * fec.MaxGroupSize
		groupSize := fec.MaxGroupSize
		if start+groupSize > len(fragments) {
			groupSize = len(fragments) - start
		}
		pkt, err := wire.EncodeParityPacket(wire.ParityPacket{
			SessionID:       s.SessionID,
			FrameID:         msg.FrameID,
			GroupStartIndex: uint16(start),
			GroupSize:       uint8(groupSize),
			Parity:          body,
		})
		if err != nil {
			return nil, nil, err
		}
		parity[i] = pkt
	}

	return video, parity, nil
}

// Transmit sends video packets then parity packets (per spec.md §5's
// ordering guarantee) to every RemoteReceiver with VideoRequested,
// recording the frame in the retransmission store.
func (s *Sender) Transmit(frameID uint32, video, parity [][]byte, now time.Time) error {
	s.Retransmission.Insert(frameID, RetransmissionEntry{
		CreationTime:  now,
		VideoPackets:  video,
		ParityPackets: parity,
	})

	for _, target := range s.Registry.LiveVideoTargets() {
		for _, pkt := range video {
			if err := s.Socket.Send(pkt, target.Endpoint); err != nil {
				return err
			}
		}
		for _, pkt := range parity {
			if err := s.Socket.Send(pkt, target.Endpoint); err != nil {
				return err
			}
		}
	}
	return nil
}

// CleanupRetransmissionStore implements spec.md §4.6's "Retransmission
// store cleanup".
func (s *Sender) CleanupRetransmissionStore(now time.Time) {
	minAck, ok := s.Registry.MinLastAckFrameID()
	s.Retransmission.Evict(now, minAck, ok, s.Config.RetentionTimeout)
}

// Run starts the cooperative sender tasks of spec.md §5 and blocks until
// ctx is cancelled or one task returns an error. The audio task only
// runs if a Microphone was supplied to NewSender.
func (s *Sender) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.runCaptureEncode(ctx) })
	g.Go(func() error { return s.runNetRecvFeedback(ctx) })
	g.Go(func() error { return s.runHeartbeat(ctx) })
	if s.Microphone != nil {
		g.Go(func() error { return s.runAudioSend(ctx) })
	}

	return g.Wait()
}

// runHeartbeat periodically broadcasts a SenderHeartbeat to every known
// RemoteReceiver, keeping the receiver's liveness timer fresh even when
// no frames are being transmitted (spec.md §4.7's "Report emission"
// paragraph, mirrored here on the sender side).
func (s *Sender) runHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, rr := range s.Registry.All() {
				if err := s.SendHeartbeat(rr.Endpoint); err != nil {
					log.Printf("sender: heartbeat send error to %d [%s]: %v", rr.ReceiverID, rr.CorrelationID, err)
				}
			}
		}
	}
}

// runAudioSend implements spec.md §4.6's "Audio sender": pull whatever
// PCM is available from the microphone into the ring buffer, then
// drain and fire-and-forget every complete frame to audio-requesting
// receivers. No FEC, no retransmission.
func (s *Sender) runAudioSend(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.NetTickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			samples, ok, err := s.Microphone.ReadSamples()
			if err != nil {
				log.Printf("sender: microphone read error: %v", err)
				continue
			}
			if ok {
				s.Audio.Ring.Push(samples)
			}
			packets, err := s.Audio.Drain()
			if err != nil {
				log.Printf("sender: audio encode error: %v", err)
				continue
			}
			if len(packets) == 0 {
				continue
			}
			targets := s.Registry.LiveAudioTargets()
			for _, pkt := range packets {
				body, err := wire.EncodeAudioPacket(pkt)
				if err != nil {
					log.Printf("sender: audio packet encode error: %v", err)
					continue
				}
				for _, target := range targets {
					if err := s.Socket.Send(body, target.Endpoint); err != nil {
						log.Printf("sender: audio send error: %v", err)
					}
				}
			}
		}
	}
}

func (s *Sender) runCaptureEncode(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.CaptureTickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			msg, ok, err := s.CaptureAndEncode(now)
			if err != nil {
				log.Printf("sender: capture/encode error: %v", err)
				continue
			}
			if !ok {
				continue
			}
			video, parity, err := s.FragmentAndParity(msg)
			if err != nil {
				log.Printf("sender: fragment/parity error: %v", err)
				continue
			}
			if err := s.Transmit(msg.FrameID, video, parity, now); err != nil {
				log.Printf("sender: transmit error: %v", err)
			}
		}
	}
}

func (s *Sender) runNetRecvFeedback(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.NetTickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			datagrams, err := s.Socket.ReceiveBatch(wire.MaxPacketSize)
			if err != nil {
				log.Printf("sender: socket receive error: %v", err)
				continue
			}
			for _, d := range datagrams {
				event, err := s.HandleReceiverPacket(d.Bytes, d.Addr, now)
				if err != nil {
					log.Printf("sender: protocol violation from %v: %v", d.Addr, err)
					continue
				}
				if event.Request != nil {
					if err := s.ResendRequested(*event.Request, d.Addr); err != nil {
						log.Printf("sender: resend error: %v", err)
					}
				}
			}
			removed := s.Registry.SweepTimeouts(now, s.Config.ReceiverTimeout)
			for _, rr := range removed {
				log.Printf("sender: receiver %d [%s] timed out", rr.ReceiverID, rr.CorrelationID)
			}
			s.CleanupRetransmissionStore(now)
		}
	}
}

// SendHeartbeat transmits a sender heartbeat to addr, used to keep a
// receiver's liveness timer fresh even absent deliveries (spec.md
// §4.7's "Report emission" paragraph mirrors this on the receiver side).
func (s *Sender) SendHeartbeat(addr *net.UDPAddr) error {
	return s.Socket.Send(wire.EncodeSenderHeartbeat(s.SessionID), addr)
}
