package main

import (
	"fmt"

	"github.com/busreg/busreg/logging"
	"github.com/busreg/busreg/notify"
	"github.com/busreg/busreg/transport"
	"github.com/busreg/busreg/wire"
)

// busClient is a thin request/response wrapper over transport.Conn, used
// by every busctl subcommand. One instance corresponds to one Hello'd
// connection on the daemon.
type busClient struct {
	conn   *transport.Conn
	connID uint64
	seq    uint32
}

func dialBus(socketPath string, logger *logging.Logger) (*busClient, error) {
	conn, err := transport.Dial(socketPath, logger)
	if err != nil {
		return nil, err
	}
	c := &busClient{conn: conn}

	resp, err := c.roundTrip(transport.OpHello, []byte{0})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if len(resp) < 1 || resp[0] != wire.StatusOK {
		_ = conn.Close()
		return nil, responseError(resp)
	}
	id, _, err := wire.GetUint64(resp[1:])
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.connID = id
	return c, nil
}

func (c *busClient) Close() error {
	_, _ = c.roundTrip(transport.OpBye, nil)
	return c.conn.Close()
}

func (c *busClient) roundTrip(op uint32, payload []byte) ([]byte, error) {
	c.seq++
	req := &wire.Frame{ConnID: uint32(c.connID), Op: op, Sequence: c.seq, Payload: payload}
	if err := c.conn.WriteFrame(req); err != nil {
		return nil, err
	}
	resp, err := c.conn.ReadFrame()
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

func (c *busClient) acquire(name string, flags uint32) (status uint32, effectiveFlags uint32, err error) {
	payload := wire.PutString(nil, name)
	payload = wire.PutUint32(payload, flags)
	resp, err := c.roundTrip(transport.OpAcquire, payload)
	if err != nil {
		return 0, 0, err
	}
	if len(resp) < 1 || resp[0] != wire.StatusOK {
		return 0, 0, responseError(resp)
	}
	status, rest, err := wire.GetUint32(resp[1:])
	if err != nil {
		return 0, 0, err
	}
	effectiveFlags, _, err = wire.GetUint32(rest)
	return status, effectiveFlags, err
}

func (c *busClient) release(name string) error {
	resp, err := c.roundTrip(transport.OpRelease, wire.PutString(nil, name))
	if err != nil {
		return err
	}
	if len(resp) < 1 || resp[0] != wire.StatusOK {
		return responseError(resp)
	}
	return nil
}

func (c *busClient) lookup(name string) (owner uint64, flags uint32, found bool, err error) {
	resp, err := c.roundTrip(transport.OpLookup, wire.PutString(nil, name))
	if err != nil {
		return 0, 0, false, err
	}
	if len(resp) < 1 || resp[0] != wire.StatusOK {
		return 0, 0, false, responseError(resp)
	}
	owner, rest, err := wire.GetUint64(resp[1:])
	if err != nil {
		return 0, 0, false, err
	}
	flags, rest, err = wire.GetUint32(rest)
	if err != nil {
		return 0, 0, false, err
	}
	if len(rest) < 1 {
		return 0, 0, false, fmt.Errorf("busctl: malformed lookup response")
	}
	return owner, flags, rest[0] != 0, nil
}

// list requests a filtered name listing. The four booleans correspond
// exactly to spec.md §4.4.7's independent filter bits; the wire order is
// include_unique_ids, include_names, include_queued, include_activators.
func (c *busClient) list(includeUniqueIDs, includeNames, includeQueued, includeActivators bool) ([]wire.ParsedRecord, error) {
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
		return nil, responseError(resp)
	}
	return wire.ParseList(resp[1:])
}

// monitor blocks, invoking onEvent for every OpNotify push until the
// connection fails or is closed.
func (c *busClient) monitor(onEvent func(notify.Event)) error {
	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			return err
		}
		if f.Op != transport.OpNotify {
			continue
		}
		ev, err := wire.DecodeEvent(f.Payload)
		if err != nil {
			return err
		}
		onEvent(ev)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func responseError(resp []byte) error {
	if len(resp) < 1 {
		return fmt.Errorf("busctl: empty response")
	}
	code, msg, err := wire.GetError(resp)
	if err != nil {
		return fmt.Errorf("busctl: malformed error response: %v", err)
	}
	return fmt.Errorf("busctl: %s: %s", code, msg)
}
