// Package socketcan implements j1939.RawSocket over a Linux SocketCAN raw CAN interface.
package socketcan

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	j1939 "github.com/aldas/go-j1939"
	"golang.org/x/sys/unix"
)

const (
	canRaw = 1

	// canIDFlagsMask covers bits 29-31 (ERR/RTR/EFF) of a SocketCAN frame header; clearing them
	// leaves the 29-bit CAN ID.
	canIDFlagsMask = uint32(0b111) << 29
	// canIDERRFlag is bit 29: ERR error message flag (0 = data frame, 1 = error message).
	canIDERRFlag = uint32(1 << 29)
	// canIDRTRFlag is bit 30: RTR remote transmission request (1 = rtr frame).
	canIDRTRFlag = uint32(1 << 30)
	// canIDEFFFlag is bit 31: EFF extended frame format (0 = standard 11 bit, 1 = extended 29 bit).
	canIDEFFFlag = uint32(1 << 31)

	// pollInterval bounds how long a single blocking Read can take so Receive can notice
	// context cancellation promptly without busy-looping.
	pollInterval = 50 * time.Millisecond
)

var errReadTimeout = errors.New("socketcan: read timeout")
var errWriteTimeout = errors.New("socketcan: write timeout")

// Connection is a raw AF_CAN socket bound to a SocketCAN interface (e.g. "can0"). It implements
// j1939.RawSocket directly: Send and Receive are context-aware, polling the socket in small
// increments so a cancelled context is noticed promptly.
type Connection struct {
	socketFD int
}

// NewConnection opens and binds a raw CAN socket on the named interface.
func NewConnection(ifName string) (*Connection, error) {
	ifi, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("socketcan: bad interface name: %w", err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, canRaw)
	if err != nil {
		return nil, fmt.Errorf("socketcan: could not create CAN socket: %w", err)
	}

	addr := &unix.SockaddrCAN{Ifindex: ifi.Index}
	if err = unix.Bind(fd, addr); err != nil {
		return nil, fmt.Errorf("socketcan: could not bind CAN socket: %w", err)
	}

	return &Connection{
		socketFD: fd,
	}, nil
}

func isContinuableSocketErr(err error) bool {
	// EWOULDBLOCK: SO_RCVTIMEO/SO_SNDTIMEO elapsed with no data/room.
	// EINTR: a signal interrupted the blocking call.
	return err == syscall.EWOULDBLOCK || err == syscall.EINTR
}

func (c *Connection) setReadTimeout(timeout time.Duration) error {
	return c.setSocketTimeout(unix.SO_RCVTIMEO, timeout)
}

func (c *Connection) setSendTimeout(timeout time.Duration) error {
	return c.setSocketTimeout(unix.SO_SNDTIMEO, timeout)
}

func (c *Connection) setSocketTimeout(opt int, timeout time.Duration) error {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	return unix.SetsockoptTimeval(c.socketFD, unix.SOL_SOCKET, opt, &tv)
}

// Close releases the underlying socket file descriptor.
func (c *Connection) Close() error {
	return unix.Close(c.socketFD)
}

// Send writes frame to the bus, retrying on the socket's send timeout until ctx is done.
func (c *Connection) Send(ctx context.Context, frame j1939.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.setSendTimeout(pollInterval); err != nil {
			return err
		}
		err := c.sendFrame(frame)
		if err == nil {
			return nil
		}
		if errors.Is(err, errWriteTimeout) {
			continue
		}
		return err
	}
}

func (c *Connection) sendFrame(frame j1939.Frame) error {
	// Linux can_frame layout: https://github.com/linux-can/can-utils/blob/master/include/linux/can.h
	canFrame := make([]byte, 16)

	canID := frame.CANID() | canIDEFFFlag
	binary.LittleEndian.PutUint32(canFrame[0:4], canID) // FIXME: big-endian arches need BigEndian here

	canFrame[4] = frame.Length
	copy(canFrame[8:], frame.Data[:frame.Length])

	_, err := unix.Write(c.socketFD, canFrame)
	if isContinuableSocketErr(err) {
		return errWriteTimeout
	}
	return err
}

// Receive blocks until one frame is read from the bus or ctx is done.
func (c *Connection) Receive(ctx context.Context) (j1939.Frame, error) {
	for {
		select {
		case <-ctx.Done():
			return j1939.Frame{}, ctx.Err()
		default:
		}

		if err := c.setReadTimeout(pollInterval); err != nil {
			return j1939.Frame{}, err
		}
		frame, err := c.readFrame()
		if err == nil {
			return frame, nil
		}
		if errors.Is(err, errReadTimeout) {
			continue
		}
		return j1939.Frame{}, err
	}
}

func (c *Connection) readFrame() (j1939.Frame, error) {
	canFrame := make([]byte, 16)
	_, err := unix.Read(c.socketFD, canFrame)
	if err != nil {
		if isContinuableSocketErr(err) {
			return j1939.Frame{}, errReadTimeout
		}
		return j1939.Frame{}, err
	}

	canID := binary.LittleEndian.Uint32(canFrame[0:4])
	if canID&canIDRTRFlag != 0 {
		return j1939.Frame{}, fmt.Errorf("socketcan: read remote transmission request frame: %w", j1939.ErrBusError)
	}
	if canID&canIDERRFlag != 0 {
		return j1939.Frame{}, fmt.Errorf("socketcan: read error message frame: %w", j1939.ErrBusError)
	}

	header, err := j1939.DecodeHeader(canID &^ canIDFlagsMask)
	if err != nil {
		return j1939.Frame{}, err
	}

	f := j1939.Frame{
		Header: header,
		Length: canFrame[4],
	}
	copy(f.Data[:], canFrame[8:8+f.Length])
	return f, nil
}
