package channel

import (
	"bufio"
	"net"
	"sync"

	"curlsp.dev/conformance/internal/log"
)

// Socket connects to a language server already listening on a TCP address
// and speaks framed JSON-RPC over the connection. The server process is
// managed externally; Stop only closes the connection.
type Socket struct {
	streamCore

	address  string
	conn     net.Conn
	stopOnce sync.Once
}

// NewSocket creates a TCP channel for the given host:port address
func NewSocket(address string) *Socket {
	return &Socket{address: address}
}

// Start dials the server and begins pumping inbound messages
func (s *Socket) Start() error {
	conn, err := net.Dial("tcp", s.address)
	if err != nil {
		return &SpawnError{Target: s.address, Err: err}
	}

	s.conn = conn
	s.writer = conn
	s.reader = bufio.NewReader(conn)
	go s.readLoop()

	log.Info("Connected to language server at %s", s.address)
	return nil
}

// Stop closes the connection. Idempotent.
func (s *Socket) Stop() error {
	s.stopOnce.Do(func() {
		if s.conn != nil {
			s.conn.Close()
		}
	})
	return nil
}
