// Package ngt1 implements j1939.RawSocket over a serial-attached Actisense-NGT1-style CAN
// gateway: single J1939 frames framed as DLE-STX <command><length><payload><crc> DLE-ETX over a
// byte stream. Multi-frame (fast-packet) traffic is not assembled; single-frame PDUs only.
package ngt1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	j1939 "github.com/aldas/go-j1939"
)

const (
	// stx starts a framed message, always preceded by dle.
	stx = 0x02
	// etx ends a framed message, always preceded by dle.
	etx = 0x03
	// dle escapes stx/etx inside the frame and itself doubles (dle dle) when it appears in data.
	dle = 0x10

	// cmdFrameReceived tags an incoming single J1939 frame read from the bus.
	cmdFrameReceived = 0x93
	// cmdFrameSend tags an outgoing single J1939 frame written to the bus.
	cmdFrameSend = 0x94

	// headerLen is the fixed prefix before the data payload: priority(1) + pgn(3) + dst(1) +
	// src(1) + timestamp(4) + length(1).
	headerLen = 11

	// maxMessageSize bounds one framed message. A single J1939 PDU plus command, length and crc
	// is far below this; anything longer is line noise or a stream this transport does not speak.
	maxMessageSize = 256
)

// Socket implements j1939.RawSocket over an io.ReadWriter such as a github.com/tarm/serial.Port
// opened against an NGT-1-style gateway.
type Socket struct {
	device io.ReadWriter

	sleepFunc func(d time.Duration)
	timeNow   func() time.Time

	// receiveDataTimeout bounds how long Receive may see zero-length reads (device idle) before
	// giving up.
	receiveDataTimeout time.Duration
}

// Config tunes Socket's idle-read behaviour.
type Config struct {
	// ReceiveDataTimeout is the maximum time Receive tolerates zero-byte reads before erroring.
	ReceiveDataTimeout time.Duration
}

// New wraps device as a RawSocket, using sensible defaults for idle-read timeout.
func New(device io.ReadWriter) *Socket {
	return NewWithConfig(device, Config{ReceiveDataTimeout: 5 * time.Second})
}

// NewWithConfig wraps device as a RawSocket with an explicit Config.
func NewWithConfig(device io.ReadWriter, config Config) *Socket {
	s := &Socket{
		device:             device,
		sleepFunc:          time.Sleep,
		timeNow:            time.Now,
		receiveDataTimeout: 5 * time.Second,
	}
	if config.ReceiveDataTimeout > 0 {
		s.receiveDataTimeout = config.ReceiveDataTimeout
	}
	return s
}

// Open is a no-op: NGT-1 gateways filter in software, not at the device, so FrameFilter values
// passed here are not enforced by the transport. Callers wanting filtering should compose
// j1939.FrameFilter over Connection's OnRead callback instead.
func (s *Socket) Open(_ []j1939.FrameFilter) error {
	return nil
}

// Close closes the underlying device, if it implements io.Closer.
func (s *Socket) Close() error {
	if c, ok := s.device.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Send frames frame into the DLE/STX...DLE/ETX envelope and writes it, retrying on EAGAIN until
// ctx is done.
func (s *Socket) Send(ctx context.Context, frame j1939.Frame) error {
	packet := encodeFrame(frame)

	toWrite := len(packet)
	totalWritten := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := s.device.Write(packet[totalWritten:])
		totalWritten += n
		if err != nil {
			if !errors.Is(err, syscall.EAGAIN) {
				return fmt.Errorf("ngt1: write failure: %w", err)
			}
		}
		if totalWritten >= toWrite {
			return nil
		}
		s.sleepFunc(10 * time.Millisecond)
	}
}

// Receive blocks, reading and unescaping one byte at a time, until a complete frame has been
// parsed or ctx is done.
func (s *Socket) Receive(ctx context.Context) (j1939.Frame, error) {
	message := make([]byte, maxMessageSize)
	messageLen := 0

	buf := make([]byte, 1)
	lastReadWithData := s.timeNow()
	var previous, current byte

	st := waitingStart
	for {
		select {
		case <-ctx.Done():
			return j1939.Frame{}, ctx.Err()
		default:
		}

		n, err := s.device.Read(buf)
		if err != nil && !(errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF)) {
			return j1939.Frame{}, fmt.Errorf("ngt1: read failure: %w", err)
		}

		now := s.timeNow()
		if n == 0 {
			if now.Sub(lastReadWithData) > s.receiveDataTimeout {
				return j1939.Frame{}, fmt.Errorf("ngt1: no data for %s: %w", s.receiveDataTimeout, j1939.ErrBusError)
			}
			continue
		}
		lastReadWithData = now
		previous, current = current, buf[0]

		switch st {
		case waitingStart:
			if previous == dle && current == stx {
				st = readingData
			}
		case readingData:
			if current == dle {
				st = escaping
				continue
			}
			if messageLen >= maxMessageSize {
				return j1939.Frame{}, errMessageOverrun()
			}
			message[messageLen] = current
			messageLen++
		case escaping:
			if current == dle { // doubled DLE: literal 0x10 byte in the data
				st = readingData
				if messageLen >= maxMessageSize {
					return j1939.Frame{}, errMessageOverrun()
				}
				message[messageLen] = current
				messageLen++
				continue
			}
			if current == etx {
				frame, err := decodeFrame(message[:messageLen])
				if err != nil {
					return j1939.Frame{}, err
				}
				return frame, nil
			}
			// unknown DLE+??? sequence: discard and resync on the next start-of-message
			st = waitingStart
			messageLen = 0
		}
	}
}

func errMessageOverrun() error {
	return fmt.Errorf("ngt1: message exceeds %d bytes without an end marker: %w", maxMessageSize, j1939.ErrBadHeader)
}

type readState uint8

const (
	waitingStart readState = iota
	readingData
	escaping
)

// encodeFrame builds the DLE/STX-framed byte-stuffed envelope for frame: priority, pgn (3 bytes
// LE), destination, source, a 4-byte timestamp placeholder, data length, then the data bytes.
func encodeFrame(frame j1939.Frame) []byte {
	data := make([]byte, headerLen+int(frame.Length))
	data[0] = frame.Header.Priority
	data[1] = byte(frame.Header.PGN)
	data[2] = byte(frame.Header.PGN >> 8)
	data[3] = byte(frame.Header.PGN >> 16)
	data[4] = frame.Header.Destination
	data[5] = frame.Header.Source
	// data[6:10] left zero: this transport does not stamp a device timestamp on send.
	data[10] = frame.Length
	copy(data[headerLen:], frame.Data[:frame.Length])

	payload := append([]byte{cmdFrameSend, byte(len(data))}, data...)
	c := crc(payload)

	packet := make([]byte, 0, len(payload)+6)
	packet = append(packet, dle, stx)
	packet = append(packet, stuff(payload)...)
	packet = append(packet, stuff([]byte{c})...)
	packet = append(packet, dle, etx)
	return packet
}

// decodeFrame parses an unescaped command+length+payload+crc body (without the DLE/STX/ETX
// envelope, already stripped by Receive's state machine) into a Frame.
func decodeFrame(raw []byte) (j1939.Frame, error) {
	if len(raw) < 2 {
		return j1939.Frame{}, fmt.Errorf("ngt1: message too short: %w", j1939.ErrBadHeader)
	}
	switch raw[0] {
	case cmdFrameReceived, cmdFrameSend:
	default:
		return j1939.Frame{}, fmt.Errorf("ngt1: unknown command byte %#x: %w", raw[0], j1939.ErrBadHeader)
	}
	if crc(raw) != 0 {
		return j1939.Frame{}, fmt.Errorf("ngt1: bad crc: %w", j1939.ErrBadHeader)
	}

	body := raw[2 : len(raw)-1] // strip command+length prefix and trailing crc byte
	if len(body) < headerLen {
		return j1939.Frame{}, fmt.Errorf("ngt1: payload too short to hold a frame header: %w", j1939.ErrBadHeader)
	}
	length := body[10]
	if int(length) > len(body)-headerLen {
		return j1939.Frame{}, fmt.Errorf("ngt1: declared data length %d exceeds payload: %w", length, j1939.ErrBadHeader)
	}

	pgn := uint32(body[1]) | uint32(body[2])<<8 | uint32(body[3])<<16
	f := j1939.Frame{
		Header: j1939.Header{
			Priority:    body[0],
			PGN:         pgn,
			Destination: body[4],
			Source:      body[5],
		},
		Length: length,
	}
	copy(f.Data[:], body[headerLen:headerLen+int(length)])
	return f, nil
}

// stuff doubles every dle byte in data, the escaping a receiver's DLE/ETX state machine expects.
func stuff(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		out = append(out, b)
		if b == dle {
			out = append(out, dle)
		}
	}
	return out
}

// crc returns the checksum byte such that summing every unescaped payload byte plus this byte,
// modulo 256, is zero.
func crc(data []byte) byte {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return byte(0 - sum)
}
