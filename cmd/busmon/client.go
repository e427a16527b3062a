package main

import (
	"fmt"
	"sync"

	"github.com/busreg/busreg/logging"
	"github.com/busreg/busreg/notify"
	"github.com/busreg/busreg/transport"
	"github.com/busreg/busreg/wire"
)

// busMonClient is busmon's connection to busd: one Hello'd session used
// both for polling List and for receiving the server's unsolicited
// OpNotify pushes. A single background reader demultiplexes the two: a
// net.Conn must not be read from two goroutines at once, so every reply
// and every push both flow through readLoop and are routed from there.
type busMonClient struct {
	conn   *transport.Conn
	connID uint64

	writeMu sync.Mutex
	seq     uint32

	pendingMu sync.Mutex
	pending   map[uint32]chan *wire.Frame

	events chan notify.Event
	readErr chan error
}

func dialBusMon(socketPath string, logger *logging.Logger) (*busMonClient, error) {
	conn, err := transport.Dial(socketPath, logger)
	if err != nil {
		return nil, err
	}
	c := &busMonClient{
		conn:    conn,
		pending: make(map[uint32]chan *wire.Frame),
		events:  make(chan notify.Event, 64),
		readErr: make(chan error, 1),
	}
	go c.readLoop()

	resp, err := c.roundTrip(transport.OpHello, []byte{0})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if len(resp) < 1 || resp[0] != wire.StatusOK {
		_ = conn.Close()
		return nil, fmt.Errorf("busmon: hello refused")
	}
	id, _, err := wire.GetUint64(resp[1:])
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.connID = id
	return c, nil
}

// readLoop is the connection's only reader. OpNotify frames go to events;
// every other frame is routed to the pending channel matching its sequence
// number, registered by roundTrip before the request was sent.
func (c *busMonClient) readLoop() {
	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			c.readErr <- err
			close(c.events)
			return
		}

		if f.Op == transport.OpNotify {
			ev, err := wire.DecodeEvent(f.Payload)
			if err == nil {
				c.events <- ev
			}
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[f.Sequence]
		if ok {
			delete(c.pending, f.Sequence)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- f
		}
	}
}

func (c *busMonClient) Close() error {
	return c.conn.Close()
}

func (c *busMonClient) roundTrip(op uint32, payload []byte) ([]byte, error) {
	c.writeMu.Lock()
	c.seq++
	seq := c.seq
	req := &wire.Frame{ConnID: uint32(c.connID), Op: op, Sequence: seq, Payload: payload}

	ch := make(chan *wire.Frame, 1)
	c.pendingMu.Lock()
	c.pending[seq] = ch
	c.pendingMu.Unlock()

	err := c.conn.WriteFrame(req)
	c.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case f := <-ch:
		return f.Payload, nil
	case err := <-c.readErr:
		c.readErr <- err // let a later caller observe it too
		return nil, err
	}
}

// list mirrors busClient.list's wire order: include_unique_ids,
// include_names, include_queued, include_activators.
func (c *busMonClient) list(includeUniqueIDs, includeNames, includeQueued, includeActivators bool) ([]wire.ParsedRecord, error) {
	payload := []byte{
		boolByte(includeUniqueIDs),
		boolByte(includeNames),
		boolByte(includeQueued),
		boolByte(includeActivators),
	}
	resp, err := c.roundTrip(transport.OpList, payload)
	if err != nil {
		return nil, err
	}
	if len(resp) < 1 || resp[0] != wire.StatusOK {
		return nil, fmt.Errorf("busmon: list refused")
	}
	return wire.ParseList(resp[1:])
}

// nextEvent blocks for the next OpNotify push decoded by readLoop.
func (c *busMonClient) nextEvent() (notify.Event, error) {
	ev, ok := <-c.events
	if !ok {
		return notify.Event{}, fmt.Errorf("busmon: connection closed")
	}
	return ev, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
