// Command busd is the name registry daemon: it owns one bus.Bus and serves
// Acquire/Release/Lookup/List requests over a Unix-domain socket, ported
// from the teacher's PipeWire daemon-facing connection handling in
// core/connection.go generalized from a single audio-server peer to many
// concurrent bus clients.
package main

import (
	"flag"
	"log"
	"sync"

	"github.com/busreg/busreg/bus"
	"github.com/busreg/busreg/config"
	"github.com/busreg/busreg/logging"
	"github.com/busreg/busreg/notify"
	"github.com/busreg/busreg/policy"
	"github.com/busreg/busreg/registry"
	"github.com/busreg/busreg/transport"
	"github.com/busreg/busreg/wire"
)

func main() {
	var (
		socketPath = flag.String("socket", "", "Unix socket path (overrides BUSREG_SOCKET_PATH)")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(level, true)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("busd: config: %v", err)
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}

	b := bus.New(cfg, policy.AllowAll{})
	if err := b.Start(); err != nil {
		log.Fatalf("busd: starting broadcaster: %v", err)
	}
	defer b.Stop()

	ln, err := transport.Listen(cfg.SocketPath, logger)
	if err != nil {
		log.Fatalf("busd: %v", err)
	}
	defer ln.Close()

	logger.Infof("busd ready on %s", cfg.SocketPath)

	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Errorf("accept: %v", err)
			continue
		}
		go serve(b, conn, logger)
	}
}

// session holds the per-connection dispatch state: the registry connection
// id assigned by Hello, and the write lock serializing the read loop's
// replies against the broadcaster's asynchronous OpNotify pushes.
type session struct {
	conn    *transport.Conn
	bus     *bus.Bus
	logger  *logging.Logger
	writeMu sync.Mutex

	connID uint64
	ready  bool
}

func serve(b *bus.Bus, conn *transport.Conn, logger *logging.Logger) {
	s := &session{conn: conn, bus: b, logger: logger}
	defer s.teardown()

	for {
		f, err := conn.ReadFrame()
		if err != nil {
			return
		}
		s.dispatch(f)
	}
}

func (s *session) teardown() {
	_ = s.conn.Close()
	if s.ready {
		log := notify.New()
		s.bus.Bye(s.connID, log)
		s.bus.Flush(log)
	}
}

func (s *session) write(f *wire.Frame) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteFrame(f); err != nil {
		s.logger.Warnf("write to conn %d: %v", s.connID, err)
	}
}

func (s *session) dispatch(f *wire.Frame) {
	switch f.Op {
	case transport.OpHello:
		s.handleHello(f)
	case transport.OpBye:
		s.teardown()
	case transport.OpAcquire:
		s.handleAcquire(f)
	case transport.OpRelease:
		s.handleRelease(f)
	case transport.OpLookup:
		s.handleLookup(f)
	case transport.OpList:
		s.handleList(f)
	default:
		s.logger.Warnf("unknown op %d from conn %d", f.Op, s.connID)
	}
}

func (s *session) handleHello(f *wire.Frame) {
	isActivator := len(f.Payload) > 0 && f.Payload[0] != 0
	c := s.bus.Hello(isActivator)
	s.connID = c.ID
	s.ready = true

	s.bus.Broadcaster().Subscribe(c.ID, notify.SubscriberFunc(func(e notify.Event) error {
		s.write(&wire.Frame{ConnID: f.ConnID, Op: transport.OpNotify, Payload: wire.EncodeEvent(e)})
		return nil
	}))

	payload := wire.PutUint64([]byte{wire.StatusOK}, c.ID)
	s.write(&wire.Frame{ConnID: f.ConnID, Op: transport.OpHello, Sequence: f.Sequence, Payload: payload})
}

func (s *session) handleAcquire(f *wire.Frame) {
	name, rest, err := wire.GetString(f.Payload)
	if err != nil {
		s.replyErr(f, err)
		return
	}
	flags, _, err := wire.GetUint32(rest)
	if err != nil {
		s.replyErr(f, err)
		return
	}

	log := notify.New()
	res, acqErr := s.bus.Acquire(s.connID, name, registry.Flags(flags), log)
	s.bus.Flush(log)

	if acqErr != nil {
		// AcquireAlready is non-fatal: still report the final flags as OK.
		if res.Status != registry.AcquireAlready {
			s.replyErr(f, acqErr)
			return
		}
	}

	payload := wire.PutUint32([]byte{wire.StatusOK}, uint32(res.Status))
	payload = wire.PutUint32(payload, uint32(res.Flags))
	s.write(&wire.Frame{ConnID: f.ConnID, Op: transport.OpAcquire, Sequence: f.Sequence, Payload: payload})
}

func (s *session) handleRelease(f *wire.Frame) {
	name, _, err := wire.GetString(f.Payload)
	if err != nil {
		s.replyErr(f, err)
		return
	}

	log := notify.New()
	if err := s.bus.Release(s.connID, name, log); err != nil {
		s.bus.Flush(log)
		s.replyErr(f, err)
		return
	}
	s.bus.Flush(log)

	s.write(&wire.Frame{ConnID: f.ConnID, Op: transport.OpRelease, Sequence: f.Sequence, Payload: []byte{wire.StatusOK}})
}

func (s *session) handleLookup(f *wire.Frame) {
	name, _, err := wire.GetString(f.Payload)
	if err != nil {
		s.replyErr(f, err)
		return
	}

	owner, flags, ok := s.bus.Lookup(name)
	payload := []byte{wire.StatusOK}
	payload = wire.PutUint64(payload, owner)
	payload = wire.PutUint32(payload, uint32(flags))
	if ok {
		payload = append(payload, 1)
	} else {
		payload = append(payload, 0)
	}
	s.write(&wire.Frame{ConnID: f.ConnID, Op: transport.OpLookup, Sequence: f.Sequence, Payload: payload})
}

// handleList decodes the four independent filter bits of spec.md §4.4.7, in
// the wire order: include_unique_ids, include_names, include_queued,
// include_activators.
func (s *session) handleList(f *wire.Frame) {
	opts := bus.ListOptions{
		IncludeUniqueIDs:  len(f.Payload) > 0 && f.Payload[0] != 0,
		IncludeNames:      len(f.Payload) > 1 && f.Payload[1] != 0,
		IncludeQueued:     len(f.Payload) > 2 && f.Payload[2] != 0,
		IncludeActivators: len(f.Payload) > 3 && f.Payload[3] != 0,
	}

	buf := s.bus.List(opts)
	payload := append([]byte{wire.StatusOK}, buf...)
	s.write(&wire.Frame{ConnID: f.ConnID, Op: transport.OpList, Sequence: f.Sequence, Payload: payload})
}

func (s *session) replyErr(f *wire.Frame, err error) {
	s.write(&wire.Frame{ConnID: f.ConnID, Op: f.Op, Sequence: f.Sequence, Payload: wire.PutError(err)})
}
