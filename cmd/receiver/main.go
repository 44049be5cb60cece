// cmd/receiver/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os/signal"
	"syscall"

	"github.com/n0remac/rgbdstream/codec"
	"github.com/n0remac/rgbdstream/ids"
	"github.com/n0remac/rgbdstream/netio"
	"github.com/n0remac/rgbdstream/receiver"
	"github.com/n0remac/rgbdstream/trvl"
)

func main() {
	listenAddr := flag.String("listen", ":0", "UDP address to bind the receiver socket on")
	senderAddr := flag.String("sender", "127.0.0.1:7070", "sender's UDP address to connect to")
	width := flag.Int("width", 640, "depth stream width")
	height := flag.Int("height", 576, "depth stream height")
	wantsAudio := flag.Bool("audio", false, "request the audio stream")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sock, err := netio.Listen(*listenAddr)
	if err != nil {
		log.Fatalf("receiver: listen on %s: %v", *listenAddr, err)
	}
	defer sock.Close()

	addr, err := net.ResolveUDPAddr("udp", *senderAddr)
	if err != nil {
		log.Fatalf("receiver: resolve sender address %s: %v", *senderAddr, err)
	}

	receiverID := ids.NewReceiverID()
	log.Printf("receiver: id %d listening on %s, connecting to %s", receiverID, sock.LocalAddr(), addr)

	r := receiver.NewReceiver(receiver.DefaultConfig(), receiverID, sock, &codec.FakeColorCodec{}, trvl.NewDecoder(*width, *height))
	if err := r.Connect(addr, true, *wantsAudio); err != nil {
		log.Fatalf("receiver: connect: %v", err)
	}

	go func() {
		for frame := range r.Delivered {
			log.Printf("receiver: delivered frame %d (keyframe=%v)", frame.Message.FrameID, frame.Message.Keyframe)
		}
	}()

	if err := r.Run(ctx); err != nil {
		log.Fatalf("receiver: run: %v", err)
	}
}
