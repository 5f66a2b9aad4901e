// Package channel adapts a duplex byte stream to and from a language server
// into a message channel: framed JSON-RPC envelopes out, classified envelopes
// in, delivered to a single subscriber in arrival order.
package channel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"curlsp.dev/conformance/internal/log"
	"curlsp.dev/conformance/internal/rpc"
)

// Handler consumes inbound messages. The channel invokes it once per
// message, in the exact order the server emitted them.
type Handler func(rpc.Message)

// Channel is a duplex message channel to a language server. Send is
// fire-and-forget at this layer: pairing requests with responses is the
// correlation table's job, not the channel's.
type Channel interface {
	// Start connects the channel (spawning the server process where the
	// transport owns one). Fails with SpawnError; no retries are attempted.
	Start() error
	// Send serializes and writes one message; it never waits for a reply
	Send(msg rpc.Message) error
	// OnMessage registers the single inbound handler. Must be called
	// before Start.
	OnMessage(h Handler)
	// Stop tears the channel down. Idempotent; safe after the server has
	// already exited.
	Stop() error
}

// SpawnError indicates the server process or connection could not be
// established. Fatal to the session.
type SpawnError struct {
	Target string
	Err    error
}

// Error implements the error interface
func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start language server %q: %v", e.Target, e.Err)
}

// Unwrap supports errors.Is/As matching on the cause
func (e *SpawnError) Unwrap() error {
	return e.Err
}

var errNotStarted = errors.New("channel not started")

// streamCore is the shared send/receive machinery for transports that carry
// Content-Length framed messages over a byte stream (stdio, sockets,
// in-process pipes).
type streamCore struct {
	writeMu sync.Mutex
	writer  io.Writer
	reader  *bufio.Reader
	handler Handler
}

func (c *streamCore) OnMessage(h Handler) {
	c.handler = h
}

func (c *streamCore) Send(msg rpc.Message) error {
	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writer == nil {
		return errNotStarted
	}
	log.Debug("Sending: %s", body)
	return rpc.WriteMessage(c.writer, body)
}

// readLoop pumps inbound frames to the handler until the stream ends.
// Malformed frames and envelopes are logged and dropped without terminating
// the session; stream-level errors end the loop.
func (c *streamCore) readLoop() {
	for {
		body, err := rpc.ReadMessage(c.reader)
		if err != nil {
			var malformed *rpc.MalformedMessageError
			if errors.As(err, &malformed) {
				log.Warn("Dropping malformed frame: %v", malformed)
				continue
			}
			if err != io.EOF && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, net.ErrClosed) {
				log.Debug("Channel read ended: %v", err)
			}
			return
		}
		log.Debug("Received: %s", body)

		msg, err := rpc.Decode(body)
		if err != nil {
			log.Warn("Dropping malformed message: %v", err)
			continue
		}
		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// Kind selects the channel transport
type Kind string

const (
	// KindStdio spawns the server process and speaks over its stdin/stdout
	KindStdio Kind = "stdio"
	// KindTCP connects to a server already listening on a TCP address
	KindTCP Kind = "tcp"
	// KindWebSocket connects to a server listening on a WebSocket URL
	KindWebSocket Kind = "websocket"
)

// New builds a channel for the given transport kind. For stdio the target is
// the server command (args apply); for tcp it is a host:port address; for
// websocket it is a ws:// URL.
func New(kind Kind, target string, args ...string) (Channel, error) {
	switch kind {
	case KindStdio:
		return NewStdio(target, args...), nil
	case KindTCP:
		return NewSocket(target), nil
	case KindWebSocket:
		return NewWebSocket(target), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", kind)
	}
}
