package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	j1939 "github.com/aldas/go-j1939"
	"github.com/aldas/go-j1939/socketcan"
	"github.com/aldas/go-j1939/transport/ngt1"
	"github.com/tarm/serial"
)

func main() {
	ifName := flag.String("interface", "can0", "SocketCAN interface to bind (ignored when -device is set)")
	deviceAddr := flag.String("device", "", "path to a serial NGT-1-style CAN gateway (overrides -interface)")
	baudRate := flag.Int("baud", 115200, "serial device baud rate")
	nameRaw := flag.String("name", "a00c81045a20021b", "local NAME as a 16-digit hex value")
	preferred := flag.Uint("preferred", 128, "preferred source address to claim")
	jitter := flag.Duration("jitter", 10*time.Millisecond, "max random jitter added to the 250ms claim settle window")
	flag.Parse()

	nameValue, err := strconv.ParseUint(*nameRaw, 16, 64)
	if err != nil {
		log.Fatalf("# invalid -name %q: %v\n", *nameRaw, err)
	}
	if *preferred > uint(j1939.MaxUnicastAddr) {
		log.Fatalf("# -preferred %d out of range 0..%d\n", *preferred, j1939.MaxUnicastAddr)
	}
	localName := j1939.NAME(nameValue)

	var socket j1939.RawSocket
	if *deviceAddr != "" {
		stream, err := serial.OpenPort(&serial.Config{
			Name:        *deviceAddr,
			Baud:        *baudRate,
			ReadTimeout: 1 * time.Second,
			Size:        8,
		})
		if err != nil {
			log.Fatal(err)
		}
		socket = ngt1.New(stream)
	} else {
		conn, err := socketcan.NewConnection(*ifName)
		if err != nil {
			log.Fatal(err)
		}
		socket = conn
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	network := j1939.NewNetwork()

	var claimer *j1939.Claimer
	conn := j1939.NewConnection(socket, network, j1939.ConnectionCallbacks{
		OnRead: func(frame j1939.Frame) {
			claimer.Process(frame)
		},
		OnError: func(where string, err error) {
			log.Printf("# connection error (%v): %v\n", where, err)
			stop()
		},
	})

	claimer = j1939.NewClaimer(localName, network, j1939.ClaimerCallbacks{
		OnAddress: func(name j1939.NAME, addr uint8) {
			fmt.Printf("# claimed address %d (0x%02x) for NAME %016x\n", addr, addr, uint64(name))
		},
		OnLost: func(name j1939.NAME) {
			fmt.Printf("# lost address for NAME %016x\n", uint64(name))
		},
		OnFrame: func(frame j1939.Frame) {
			if err := conn.SendRaw(frame); err != nil {
				log.Printf("# could not queue frame: %v\n", err)
			}
		},
		OnError: func(where string, err error) {
			log.Printf("# claimer error (%v): %v\n", where, err)
		},
	})
	if *jitter > 0 {
		maxJitter := *jitter
		claimer.SetSettleJitter(func() time.Duration {
			return time.Duration(rand.Int63n(int64(maxJitter)))
		})
	}

	conn.Start(ctx)
	claimer.StartAddressClaim(uint8(*preferred))
	fmt.Printf("# claiming an address for NAME %016x, preferred %d\n", nameValue, *preferred)

	<-ctx.Done()
	claimer.Stop()
	if err := conn.Close(); err != nil {
		log.Printf("# close: %v\n", err)
	}
	<-conn.Done()
}
