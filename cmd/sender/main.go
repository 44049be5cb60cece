// cmd/sender/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/n0remac/rgbdstream/codec"
	"github.com/n0remac/rgbdstream/ids"
	"github.com/n0remac/rgbdstream/netio"
	"github.com/n0remac/rgbdstream/sender"
	"github.com/n0remac/rgbdstream/shadow"
)

func main() {
	listenAddr := flag.String("listen", ":7070", "UDP address to bind the sender socket on")
	width := flag.Int("width", 640, "depth stream width")
	height := flag.Int("height", 576, "depth stream height")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sock, err := netio.Listen(*listenAddr)
	if err != nil {
		log.Fatalf("sender: listen on %s: %v", *listenAddr, err)
	}
	defer sock.Close()

	sessionID := ids.NewSessionID()
	log.Printf("sender: session %d listening on %s", sessionID, sock.LocalAddr())

	calib := shadow.Calibration{
		Width:        *width,
		Height:       *height,
		UnitX:        make([]float32, *width**height),
		ColorCameraX: 50,
	}

	s, err := sender.NewSender(sender.DefaultConfig(), sessionID, sock,
		&codec.FakeSensorDevice{Calib: codec.Calibration{Width: *width, Height: *height}},
		&codec.FakeColorCodec{}, &codec.FakeAudioCodec{}, nil, calib)
	if err != nil {
		log.Fatalf("sender: init: %v", err)
	}

	if err := s.Run(ctx); err != nil {
		log.Fatalf("sender: run: %v", err)
	}
}
