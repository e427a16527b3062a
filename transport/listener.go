package transport

import (
	"fmt"
	"net"
	"os"

	"github.com/busreg/busreg/logging"
)

// Listener accepts client connections on a Unix-domain socket, removing any
// stale socket file left behind by a previous (crashed) daemon instance
// before binding, in the style of a conventional Unix daemon listener.
type Listener struct {
	ln     net.Listener
	path   string
	logger *logging.Logger
}

// Listen binds a Unix-domain socket at path, creating it with mode 0700 as
// only the daemon's own user is expected to own names on the bus.
func Listen(path string, logger *logging.Logger) (*Listener, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("transport: removing stale socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o700); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("transport: chmod %s: %w", path, err)
	}

	logger.Infof("listening on %s", path)
	return &Listener{ln: ln, path: path, logger: logger}, nil
}

// Accept blocks for the next incoming client connection.
func (l *Listener) Accept() (*Conn, error) {
	socket, err := l.ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	return NewConn(socket, l.logger), nil
}

// Close stops accepting new connections and removes the socket file.
func (l *Listener) Close() error {
	err := l.ln.Close()
	_ = os.Remove(l.path)
	return err
}
