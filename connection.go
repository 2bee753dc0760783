package j1939

import (
	"context"
	"errors"
	"sync"

	"github.com/aldas/go-j1939/internal/queue"
	"github.com/aldas/go-j1939/internal/syncutil"
)

// RawSocket is the raw CAN transport a Connection rides on. Implementations (socketcan.Connection,
// transport/ngt1.Socket) own the underlying file descriptor or serial port; Connection only ever
// calls Send/Receive/Close.
type RawSocket interface {
	// Send writes one frame to the bus, blocking until written or ctx is done.
	Send(ctx context.Context, frame Frame) error
	// Receive blocks until one frame has been read from the bus or ctx is done.
	Receive(ctx context.Context) (Frame, error)
	// Close releases the underlying transport. Concurrent Send/Receive calls should return an
	// error once Close has been called.
	Close() error
}

// Opener is implemented by a RawSocket that wants to install hardware/kernel-level filters at
// open time. Filters are opaque to this package; a given RawSocket decides how to apply them.
type Opener interface {
	Open(filters []FrameFilter) error
}

// ConnectionCallbacks are the events a Connection reports. OnRead and OnError are required for
// the connection to be of any use; OnStart, OnDestroy and OnSend are optional observability hooks.
type ConnectionCallbacks struct {
	OnStart   func(c *Connection)
	OnDestroy func(c *Connection)
	OnRead    func(frame Frame)
	OnSend    func(frame Frame)
	OnError   func(where string, err error)
}

// Connection is a per-peer bidirectional endpoint over a raw CAN socket: a send queue with at
// most one write in flight, and a read loop that resolves NAME-addressed frames against a shared
// Network map and filters out frames not meant for this peer.
type Connection struct {
	socket  RawSocket
	network *Network

	callbacks ConnectionCallbacks

	mu         syncutil.Mutex
	localName  *NAME
	targetName *NAME
	closed     bool

	queue       *queue.Queue[Frame]
	writeSignal chan struct{}

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// NewConnection wraps socket as a J1939 connection reading/writing against network.
func NewConnection(socket RawSocket, network *Network, callbacks ConnectionCallbacks) *Connection {
	return &Connection{
		socket:      socket,
		network:     network,
		callbacks:   callbacks,
		queue:       queue.New[Frame](),
		writeSignal: make(chan struct{}, 1),
		stopped:     make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// SetLocalName sets the NAME this connection sends messages from, used to stamp the source
// address on outgoing broadcast/send frames and to filter incoming directed frames.
func (c *Connection) SetLocalName(name NAME) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localName = &name
}

// SetTargetName sets the NAME this connection sends messages to, used to stamp the destination
// address on outgoing Send frames and to filter incoming frames by source.
func (c *Connection) SetTargetName(name NAME) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetName = &name
}

// LocalName returns the configured local NAME, if any.
func (c *Connection) LocalName() (NAME, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.localName == nil {
		return 0, false
	}
	return *c.localName, true
}

// TargetName returns the configured target NAME, if any.
func (c *Connection) TargetName() (NAME, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.targetName == nil {
		return 0, false
	}
	return *c.targetName, true
}

// Network returns the network map this connection resolves addresses against.
func (c *Connection) Network() *Network {
	return c.network
}

// Open installs filters on the underlying socket, if it supports them.
func (c *Connection) Open(filters []FrameFilter) error {
	if o, ok := c.socket.(Opener); ok {
		return o.Open(filters)
	}
	return nil
}

// Start begins the read loop and the write loop. Both run until ctx is cancelled or Close is
// called. Start fires OnStart; the goroutines fire OnDestroy once both have exited.
func (c *Connection) Start(ctx context.Context) {
	if c.callbacks.OnStart != nil {
		c.callbacks.OnStart(c)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
	}()
	go func() {
		wg.Wait()
		close(c.done)
		if c.callbacks.OnDestroy != nil {
			c.callbacks.OnDestroy(c)
		}
	}()
}

// Done is closed once both the read and write loops have exited.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close stops the read/write loops and releases the underlying socket. Queued frames are
// discarded.
func (c *Connection) Close() error {
	var err error
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.stopped)
		err = c.socket.Close()
	})
	return err
}

// SendRaw enqueues frame for transmission verbatim; no address rewriting.
func (c *Connection) SendRaw(frame Frame) error {
	return c.enqueue(frame)
}

// Broadcast stamps frame's source address from the local NAME's current network address and
// enqueues it. frame must already carry a broadcast PDU-format.
func (c *Connection) Broadcast(frame Frame) error {
	if !frame.IsBroadcast() {
		return ErrInvalidArgument
	}
	local, ok := c.LocalName()
	if !ok {
		return ErrInvalidArgument
	}
	addr, ok := c.network.FindAddress(local)
	if !ok {
		return ErrInvalidArgument
	}
	frame.Header.Source = addr
	return c.enqueue(frame)
}

// Send stamps frame's source from the configured local NAME and destination from the
// configured target NAME, then enqueues it. Both must be set, and frame must not be broadcast.
func (c *Connection) Send(frame Frame) error {
	target, ok := c.TargetName()
	if !ok {
		return ErrInvalidArgument
	}
	return c.sendTo(target, frame)
}

// SendTo is like Send but with an explicit target NAME overriding any configured one.
func (c *Connection) SendTo(target NAME, frame Frame) error {
	return c.sendTo(target, frame)
}

func (c *Connection) sendTo(target NAME, frame Frame) error {
	if frame.IsBroadcast() {
		return ErrInvalidArgument
	}
	local, ok := c.LocalName()
	if !ok {
		return ErrInvalidArgument
	}
	srcAddr, ok := c.network.FindAddress(local)
	if !ok {
		return ErrInvalidArgument
	}
	dstAddr, ok := c.network.FindAddress(target)
	if !ok {
		return ErrInvalidArgument
	}
	frame.Header.Source = srcAddr
	frame.Header.Destination = dstAddr
	return c.enqueue(frame)
}

// enqueue appends frame to the outgoing FIFO. The queue is unbounded: nothing short of Close
// drops a queued frame, and a caller that wants backpressure watches QueueLen instead.
func (c *Connection) enqueue(frame Frame) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.queue.Enqueue(frame)
	c.mu.Unlock()
	select {
	case c.writeSignal <- struct{}{}:
	default:
	}
	return nil
}

// QueueLen returns the number of outgoing frames waiting to be written to the socket.
func (c *Connection) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

func (c *Connection) writeLoop(ctx context.Context) {
	for {
		frame, ok := c.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-c.stopped:
				return
			case <-c.writeSignal:
				continue
			}
		}
		if err := c.socket.Send(ctx, frame); err != nil {
			if isShutdownErr(err) || c.isClosed() {
				return
			}
			c.reportError("write", err)
			_ = c.Close()
			return
		}
		if c.callbacks.OnSend != nil {
			c.callbacks.OnSend(frame)
		}
	}
}

func (c *Connection) dequeue() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Frame{}, false // Close discards whatever is still queued
	}
	return c.queue.Dequeue()
}

func (c *Connection) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopped:
			return
		default:
		}

		frame, err := c.socket.Receive(ctx)
		if err != nil {
			if isShutdownErr(err) || c.isClosed() {
				return
			}
			// bus or decode failure: report and take the socket down
			c.reportError("read", err)
			_ = c.Close()
			return
		}

		if !c.validateAddress(frame) {
			continue
		}
		if c.callbacks.OnRead != nil {
			c.callbacks.OnRead(frame)
		}
	}
}

// validateAddress implements the incoming-frame accept/reject rule: accept everything if
// neither NAME is set; otherwise require a directed frame's destination to match the local
// NAME's current address, and (if a target NAME is set) require the frame's source to match the
// target NAME's current address.
func (c *Connection) validateAddress(frame Frame) bool {
	local, hasLocal := c.LocalName()
	target, hasTarget := c.TargetName()
	if !hasLocal && !hasTarget {
		return true
	}

	if hasLocal && !frame.IsBroadcast() {
		addr, ok := c.network.FindAddress(local)
		if !ok || frame.Header.Destination != addr {
			return false
		}
	}

	if hasTarget {
		addr, ok := c.network.FindAddress(target)
		if !ok || frame.Header.Source != addr {
			return false
		}
	}

	return true
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// isShutdownErr reports whether err is an expected consequence of cancellation or Close rather
// than a bus failure worth reporting.
func isShutdownErr(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrClosed)
}

func (c *Connection) reportError(where string, err error) {
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(where, err)
	}
}
