package channel

import (
	"errors"
	"fmt"
	"sync"

	"curlsp.dev/conformance/internal/log"
	"curlsp.dev/conformance/internal/rpc"
	"github.com/gorilla/websocket"
)

// WebSocket connects to a language server listening on a WebSocket URL.
// Each JSON-RPC envelope rides in its own text frame, so no Content-Length
// framing is applied.
type WebSocket struct {
	url     string
	conn    *websocket.Conn
	handler Handler

	writeMu  sync.Mutex
	stopOnce sync.Once
}

// NewWebSocket creates a websocket channel for the given ws:// URL
func NewWebSocket(url string) *WebSocket {
	return &WebSocket{url: url}
}

// OnMessage registers the single inbound handler. Must be called before
// Start.
func (w *WebSocket) OnMessage(h Handler) {
	w.handler = h
}

// Start dials the server and begins pumping inbound messages
func (w *WebSocket) Start() error {
	conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
	if err != nil {
		return &SpawnError{Target: w.url, Err: err}
	}
	w.conn = conn
	go w.readLoop()

	log.Info("Connected to language server at %s", w.url)
	return nil
}

// Send writes one message as a single text frame
func (w *WebSocket) Send(msg rpc.Message) error {
	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if w.conn == nil {
		return errNotStarted
	}
	log.Debug("Sending: %s", body)
	return w.conn.WriteMessage(websocket.TextMessage, body)
}

// Stop closes the connection. Idempotent.
func (w *WebSocket) Stop() error {
	w.stopOnce.Do(func() {
		if w.conn != nil {
			w.conn.Close()
		}
	})
	return nil
}

func (w *WebSocket) readLoop() {
	for {
		_, body, err := w.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
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
		if w.handler != nil {
			w.handler(msg)
		}
	}
}
