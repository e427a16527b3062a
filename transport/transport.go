// Package transport implements the Unix-domain-socket framed protocol that
// carries request/response envelopes between a bus client and cmd/busd. It
// is ported from the teacher protocol's core/connection.go: a length-prefixed
// framing over net.Conn with read/write deadlines, generalized from a single
// length-prefixed payload to wire.Frame (which itself carries an operation
// code and sequence number, since this protocol is request/response rather
// than the teacher's one-way event stream).
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/busreg/busreg/logging"
	"github.com/busreg/busreg/wire"
)

// Operation codes carried in wire.Frame.Op.
const (
	OpHello uint32 = iota
	OpBye
	OpAcquire
	OpRelease
	OpLookup
	OpList
	OpNotify // server -> client unsolicited push of a flushed notify.Event
)

// DefaultSocketPath mirrors config.defaultSocketPath for standalone callers
// that construct a Conn without going through package config.
const DefaultSocketPath = "/run/busd/bus.sock"

const maxFrameBytes = 1 << 20 // 1MB, matching the teacher's ReadMessage cap

// Conn wraps a Unix-domain socket with frame-oriented Read/Write, in the
// same shape as the teacher's core.Connection but speaking wire.Frame
// instead of a bare length-prefixed payload.
type Conn struct {
	socket    net.Conn
	logger    *logging.Logger
	timeout   time.Duration
	connected bool
}

// Dial connects to a busd socket at path, defaulting to DefaultSocketPath.
func Dial(path string, logger *logging.Logger) (*Conn, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	if logger == nil {
		logger = logging.Default()
	}

	logger.Infof("dialing busd at %s", path)
	socket, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", path, err)
	}

	c := &Conn{socket: socket, logger: logger, timeout: 5 * time.Second, connected: true}
	logger.Debugf("connected to busd at %s", path)
	return c, nil
}

// NewConn wraps an already-accepted server-side socket (see Listener).
func NewConn(socket net.Conn, logger *logging.Logger) *Conn {
	if logger == nil {
		logger = logging.Default()
	}
	return &Conn{socket: socket, logger: logger, timeout: 5 * time.Second, connected: true}
}

// SetTimeout sets the read/write deadline applied to every frame.
func (c *Conn) SetTimeout(d time.Duration) { c.timeout = d }

// WriteFrame marshals and sends one frame, prefixed by its encoded length.
func (c *Conn) WriteFrame(f *wire.Frame) error {
	if !c.connected {
		return fmt.Errorf("transport: connection is closed")
	}
	data, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("transport: marshal frame: %w", err)
	}
	if len(data) > maxFrameBytes {
		return fmt.Errorf("transport: frame too large: %d bytes", len(data))
	}

	if c.timeout > 0 {
		_ = c.socket.SetWriteDeadline(time.Now().Add(c.timeout))
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := c.socket.Write(lenBuf[:]); err != nil {
		return c.wrapNetErr("write frame length", err)
	}
	if _, err := c.socket.Write(data); err != nil {
		return c.wrapNetErr("write frame body", err)
	}

	c.logger.Debugf("sent frame: %s", f)
	return nil
}

// ReadFrame blocks until one complete frame arrives, or returns io.EOF if
// the peer closed the connection cleanly.
func (c *Conn) ReadFrame() (*wire.Frame, error) {
	if !c.connected {
		return nil, fmt.Errorf("transport: connection is closed")
	}
	if c.timeout > 0 {
		_ = c.socket.SetReadDeadline(time.Now().Add(c.timeout))
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(c.socket, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, c.wrapNetErr("read frame length", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, fmt.Errorf("transport: frame length is 0")
	}
	if n > maxFrameBytes {
		return nil, fmt.Errorf("transport: frame too large: %d bytes", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(c.socket, body); err != nil {
		return nil, c.wrapNetErr("read frame body", err)
	}

	f := &wire.Frame{}
	if err := f.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("transport: unmarshal frame: %w", err)
	}
	c.logger.Debugf("received frame: %s", f)
	return f, nil
}

func (c *Conn) wrapNetErr(op string, err error) error {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return fmt.Errorf("transport: %s: timeout: %w", op, err)
	}
	return fmt.Errorf("transport: %s: %w", op, err)
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	if !c.connected {
		return nil
	}
	c.connected = false
	return c.socket.Close()
}

// LocalAddr returns the underlying socket's local address.
func (c *Conn) LocalAddr() net.Addr { return c.socket.LocalAddr() }

// RemoteAddr returns the underlying socket's remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.socket.RemoteAddr() }
