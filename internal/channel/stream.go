package channel

import (
	"bufio"
	"io"
	"sync"
)

// Stream adapts any duplex byte stream into a channel. The harness uses it
// for in-process transports; tests drive a fake server through one end of a
// pipe pair.
type Stream struct {
	streamCore

	rw       io.ReadWriteCloser
	stopOnce sync.Once
}

// NewStream wraps an already-connected duplex stream
func NewStream(rw io.ReadWriteCloser) *Stream {
	return &Stream{rw: rw}
}

// Start begins pumping inbound messages from the stream
func (s *Stream) Start() error {
	s.writer = s.rw
	s.reader = bufio.NewReader(s.rw)
	go s.readLoop()
	return nil
}

// Stop closes the stream. Idempotent.
func (s *Stream) Stop() error {
	s.stopOnce.Do(func() {
		s.rw.Close()
	})
	return nil
}
