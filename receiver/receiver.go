// Grounded on spec.md §4.7's four receiver activities and §5's cooperative
// receiver tasks. Run uses the same errgroup-of-goroutines pattern as
// sender.Sender.Run (see sender/sender.go) with two goroutines:
// runNetLoop, which receives, recovers, requests, decodes and delivers
// within one tick loop, and runHeartbeat. Receiving, recovery/delivery and
// decoding are not separate tasks; decoded frames are handed to the
// caller on Delivered.
package receiver

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/n0remac/rgbdstream/codec"
	"github.com/n0remac/rgbdstream/frame"
	"github.com/n0remac/rgbdstream/netio"
	"github.com/n0remac/rgbdstream/trvl"
	"github.com/n0remac/rgbdstream/wire"
)

// ErrFrameUnrecoverable is spec.md §7's FrameUnrecoverable kind: a frame
// was abandoned before assembly.
var ErrFrameUnrecoverable = errors.New("receiver: frame abandoned")

// Config carries the tunables named in spec.md §6/§4.7.
type Config struct {
	AbandonTimeout    time.Duration
	RequestHoldoff    time.Duration
	NetTickPeriod     time.Duration
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the constants recommended by spec.md §6.
func DefaultConfig() Config {
	return Config{
		AbandonTimeout:    time.Second,
		RequestHoldoff:    30 * time.Millisecond,
		NetTickPeriod:     time.Millisecond,
		HeartbeatInterval: time.Second,
	}
}

// DeliveredFrame is one frame handed to decode_render, per spec.md §4.7.
type DeliveredFrame struct {
	Message       frame.Message
	Color         codec.Image
	Depth         []int16
	CollectedTime time.Time
}

// Receiver owns every piece of receiver-side state named in spec.md §3/
// §4.7.
type Receiver struct {
	Config Config

	ReceiverID    uint32
	SenderAddr    *net.UDPAddr
	ExpectedSesID *uint32 // nil until the first sender packet establishes it

	Socket *netio.Socket
	Color  codec.ColorCodec
	Depth  *trvl.Decoder

	Store *Store

	nextFrameID uint32
	haveFirst   bool

	// Delivered receives assembled, decoded frames for decode_render;
	// the caller (e.g. cmd/receiver) drains it.
	Delivered chan DeliveredFrame
	// Reports receives Report packets this receiver wants sent back to
	// the sender; runNetLoop drains it every tick and sends each report
	// to SenderAddr.
	Reports chan wire.ReportPacket
}

// NewReceiver wires together a Receiver from its collaborators.
func NewReceiver(cfg Config, receiverID uint32, sock *netio.Socket, color codec.ColorCodec, depth *trvl.Decoder) *Receiver {
	return &Receiver{
		Config:    cfg,
		ReceiverID: receiverID,
		Socket:    sock,
		Color:     color,
		Depth:     depth,
		Store:     NewStore(),
		Delivered: make(chan DeliveredFrame, 8),
		Reports:   make(chan wire.ReportPacket, 32),
	}
}

// Connect sends a Connect packet to addr requesting video/audio, per
// spec.md §4.4.
func (r *Receiver) Connect(addr *net.UDPAddr, wantsVideo, wantsAudio bool) error {
	r.SenderAddr = addr
	return r.Socket.Send(wire.EncodeConnectPacket(wire.ConnectPacket{
		ReceiverID: r.ReceiverID,
		WantsVideo: wantsVideo,
		WantsAudio: wantsAudio,
	}), addr)
}

// handleSessionID implements spec.md §4.8: a session id different from
// the one already established resets all receiver state immediately.
func (r *Receiver) handleSessionID(sessionID uint32) {
	if r.ExpectedSesID != nil && *r.ExpectedSesID == sessionID {
		return
	}
	id := sessionID
	r.ExpectedSesID = &id
	r.Store.Clear()
	r.haveFirst = false
	log.Printf("receiver: session reset to %d", sessionID)
}

// IngestDatagrams classifies and installs a batch of received sender
// packets into the fragment-collection store, per spec.md §4.7 activity
// 1/2. It is the net_recv task's per-tick work.
func (r *Receiver) IngestDatagrams(datagrams [][]byte, now time.Time) {
	set := ClassifyDatagrams(datagrams)
	for sessionID := range set.SessionIDs {
		r.handleSessionID(sessionID)
	}

	for _, v := range set.Video {
		c := r.Store.GetOrCreate(v.FrameID, now)
		c.AddVideo(int(v.PacketIndex), int(v.PacketCount), v.Fragment)
	}
	for _, p := range set.Parity {
		c := r.Store.GetOrCreate(p.FrameID, now)
		c.AddParity(int(p.GroupStartIndex), p.Parity)
	}
}

// RecoverAndSchedule implements spec.md §4.7's "Recovery scheduling":
// reconcile every pending frame's readiness, and for frames still
// incomplete past RequestHoldoff since their last request, return the
// Request packets to send.
func (r *Receiver) RecoverAndSchedule(now time.Time) []wire.RequestPacket {
	var requests []wire.RequestPacket
	for _, frameID := range r.pendingFrameIDs() {
		c, ok := r.Store.Get(frameID)
		if !ok {
			continue
		}
		c.Reconcile()
		if c.Ready() {
			continue
		}
		if now.Sub(c.LastRequest) < r.Config.RequestHoldoff {
			continue
		}
		missing := c.MissingIndices()
		if len(missing) == 0 {
			continue
		}
		c.LastRequest = now
		indices := make([]uint16, len(missing))
		for i, m := range missing {
			indices[i] = uint16(m)
		}
		requests = append(requests, wire.RequestPacket{
			ReceiverID:    r.ReceiverID,
			FrameID:       frameID,
			PacketIndices: indices,
		})
	}
	return requests
}

// pendingFrameIDs returns every frame id currently tracked by the store.
// It takes a lock-free snapshot by delegating to Store's own locking.
func (r *Receiver) pendingFrameIDs() []uint32 {
	return r.Store.FrameIDs()
}

// smallestFrameID returns the minimum of ids, or ok=false if empty.
func smallestFrameID(ids []uint32) (min uint32, ok bool) {
	for i, id := range ids {
		if i == 0 || id < min {
			min = id
		}
	}
	return min, len(ids) > 0
}

// DeliverReady implements spec.md §4.7's "Ordered delivery" and
// "Keyframe catch-up": it walks ready frames starting at nextFrameID,
// decoding and emitting each in order, and performs catch-up when a
// later keyframe is ready but intervening frames are stuck.
func (r *Receiver) DeliverReady(now time.Time) error {
	if !r.haveFirst {
		if smallest, ok := smallestFrameID(r.Store.FrameIDs()); ok {
			r.nextFrameID = smallest
		}
	}
	for {
		c, ok := r.Store.Get(r.nextFrameID)
		if ok {
			c.Reconcile()
		}
		if ok && c.Ready() {
			if err := r.deliverFrame(c, now); err != nil {
				return err
			}
			continue
		}

		// Ordinary in-order path stalled: look for a later ready keyframe
		// to catch up to, per spec.md §4.7.
		keyframeID, found := r.findCatchUpKeyframe(now)
		if !found {
			return nil
		}
		r.Store.DeleteBefore(keyframeID)
		r.nextFrameID = keyframeID
		r.Depth.Reset()
	}
}

// findCatchUpKeyframe scans for the smallest ready keyframe with
// frame_id > nextFrameID, where every frame in [nextFrameID, keyframeID)
// is either absent from the store or older than AbandonTimeout (see
// interveningFramesStuck), per spec.md §4.7. Whether a present, younger
// frame is recoverable is not considered.
func (r *Receiver) findCatchUpKeyframe(now time.Time) (uint32, bool) {
	ids := r.Store.FrameIDs()
	var best uint32
	found := false
	for _, id := range ids {
		if id <= r.nextFrameID {
			continue
		}
		c, ok := r.Store.Get(id)
		if !ok {
			continue
		}
		c.Reconcile()
		if !c.Ready() {
			continue
		}
		msg, err := frame.Unmarshal(id, c.Assemble())
		if err != nil || !msg.Keyframe {
			continue
		}
		if !r.interveningFramesStuck(id, now) {
			continue
		}
		if !found || id < best {
			best = id
			found = true
		}
	}
	return best, found
}

// interveningFramesStuck reports whether every frame in
// [nextFrameID, keyframeID) is either missing from the store or old
// enough to count as abandoned, justifying a catch-up jump.
func (r *Receiver) interveningFramesStuck(keyframeID uint32, now time.Time) bool {
	for id := r.nextFrameID; id < keyframeID; id++ {
		c, ok := r.Store.Get(id)
		if !ok {
			continue // never arrived at all: treat as already abandoned
		}
		if now.Sub(c.CreationTime) <= r.Config.AbandonTimeout {
			return false
		}
	}
	return true
}

// deliverFrame decodes and emits one ready frame, advances nextFrameID,
// and enqueues its Report.
func (r *Receiver) deliverFrame(c *FrameCollection, now time.Time) error {
	decodeStart := now
	msg, err := frame.Unmarshal(c.FrameID, c.Assemble())
	if err != nil {
		r.Store.Delete(c.FrameID)
		r.nextFrameID = c.FrameID + 1
		return err
	}

	depth, err := r.Depth.Decompress(msg.Depth, msg.Keyframe)
	if err != nil {
		r.Store.Delete(c.FrameID)
		r.nextFrameID = c.FrameID + 1
		return err
	}
	color, err := r.Color.Decode(msg.Color)
	if err != nil {
		r.Store.Delete(c.FrameID)
		r.nextFrameID = c.FrameID + 1
		return err
	}

	decoderTimeMs := float32(time.Since(decodeStart).Seconds() * 1000)

	select {
	case r.Delivered <- DeliveredFrame{Message: msg, Color: color, Depth: depth, CollectedTime: now}:
	default:
		// Delivered is full: this frame is dropped, keyframe or not,
		// rather than blocking the net loop. Frames already queued are
		// kept.
	}

	select {
	case r.Reports <- wire.ReportPacket{
		ReceiverID:    r.ReceiverID,
		FrameID:       msg.FrameID,
		DecoderTimeMs: decoderTimeMs,
		FrameTimeMs:   msg.TimestampMs,
	}:
	default:
	}

	r.Store.Delete(c.FrameID)
	r.nextFrameID = c.FrameID + 1
	r.haveFirst = true
	return nil
}

// AbandonStale implements spec.md §3's ABANDON_TIMEOUT_SEC lifecycle
// rule for frames that never become ready. It returns the abandoned
// collections (including each one's CorrelationID, for logging).
func (r *Receiver) AbandonStale(now time.Time) []FrameCollection {
	abandoned := r.Store.Abandoned(now, r.Config.AbandonTimeout)
	for _, c := range abandoned {
		r.Store.Delete(c.FrameID)
	}
	return abandoned
}

// Run starts the receiver's cooperative tasks and blocks until ctx is
// cancelled or a task errors.
func (r *Receiver) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.runNetLoop(ctx) })
	g.Go(func() error { return r.runHeartbeat(ctx) })
	return g.Wait()
}

func (r *Receiver) runNetLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.Config.NetTickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			datagrams, err := r.Socket.ReceiveBatch(wire.MaxPacketSize)
			if err != nil {
				log.Printf("receiver: socket receive error: %v", err)
				continue
			}
			var bodies [][]byte
			for _, d := range datagrams {
				bodies = append(bodies, d.Bytes)
			}
			r.IngestDatagrams(bodies, now)

			requests := r.RecoverAndSchedule(now)
			for _, req := range requests {
				if r.SenderAddr == nil {
					continue
				}
				data, err := wire.EncodeRequestPacket(req)
				if err != nil {
					continue
				}
				if err := r.Socket.Send(data, r.SenderAddr); err != nil {
					log.Printf("receiver: send request error: %v", err)
				}
			}

			if err := r.DeliverReady(now); err != nil {
				log.Printf("receiver: deliver error: %v", err)
			}
			for _, c := range r.AbandonStale(now) {
				log.Printf("receiver: %v: frame %d [%s]", ErrFrameUnrecoverable, c.FrameID, c.CorrelationID)
			}

			for {
				select {
				case report := <-r.Reports:
					if r.SenderAddr == nil {
						continue
					}
					if err := r.Socket.Send(wire.EncodeReportPacket(report), r.SenderAddr); err != nil {
						log.Printf("receiver: send report error: %v", err)
					}
					continue
				default:
				}
				break
			}
		}
	}
}

func (r *Receiver) runHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(r.Config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if r.SenderAddr == nil {
				continue
			}
			if err := r.Socket.Send(wire.EncodeReceiverHeartbeat(r.ReceiverID), r.SenderAddr); err != nil {
				log.Printf("receiver: heartbeat send error: %v", err)
			}
		}
	}
}
