// Package client implements the LSP test client: a dispatcher that is the
// channel's sole inbound subscriber, a correlation table matching responses
// to in-flight requests, and a session state machine gating which messages
// are legal to send.
package client

import (
	"encoding/json"
	"time"

	"curlsp.dev/conformance/internal/channel"
	"curlsp.dev/conformance/internal/correlate"
	"curlsp.dev/conformance/internal/log"
	"curlsp.dev/conformance/internal/rpc"
	"curlsp.dev/conformance/internal/session"
)

// DefaultRequestTimeout bounds each request unless overridden per client
const DefaultRequestTimeout = 5 * time.Second

// NotificationSink receives server-initiated notifications (diagnostics
// pushes, log messages). Unset, they are logged and dropped.
type NotificationSink func(msg rpc.Message)

// ServerRequestHandler answers server-initiated requests (e.g.
// workspace/configuration). The returned value becomes the response result.
type ServerRequestHandler func(method string, params json.RawMessage) (any, error)

// Client drives one language server over one channel
type Client struct {
	ch      channel.Channel
	ids     *correlate.Allocator
	table   *correlate.Table
	session *session.Machine

	requestTimeout time.Duration
	notifySink     NotificationSink
	requestHandler ServerRequestHandler
}

// Option configures a Client
type Option func(*Client)

// WithRequestTimeout overrides the per-request response budget
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithNotificationSink routes server notifications to fn
func WithNotificationSink(fn NotificationSink) Option {
	return func(c *Client) { c.notifySink = fn }
}

// WithServerRequestHandler overrides the default null-result reply to
// server-initiated requests.
func WithServerRequestHandler(fn ServerRequestHandler) Option {
	return func(c *Client) { c.requestHandler = fn }
}

// New creates a client over the given channel and registers itself as the
// channel's inbound handler. The channel is not started until Start.
func New(ch channel.Channel, opts ...Option) *Client {
	c := &Client{
		ch:             ch,
		ids:            correlate.NewAllocator(),
		table:          correlate.NewTable(),
		session:        session.NewMachine(),
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	ch.OnMessage(c.dispatch)
	return c
}

// Start connects the channel (spawning the server for process transports)
func (c *Client) Start() error {
	return c.ch.Start()
}

// Close is session-level cancellation: it terminates the server channel and
// fails every still-pending request instead of leaving them to time out
// individually. Idempotent.
func (c *Client) Close() error {
	c.session.Terminate()
	err := c.ch.Stop()
	c.table.FailAll(correlate.ErrSessionTerminated)
	return err
}

// State returns the current session state
func (c *Client) State() session.State {
	return c.session.State()
}

// Capabilities returns the raw server capabilities captured from the
// initialize response, nil before the handshake completes.
func (c *Client) Capabilities() json.RawMessage {
	return c.session.Capabilities()
}

// Pending returns the number of requests currently awaiting a response
func (c *Client) Pending() int {
	return c.table.Len()
}

// Call issues a feature request and blocks until its response arrives, its
// timeout elapses, or the session is torn down. Server-reported errors come
// back as *rpc.Error. Illegal while the session is not initialized; the
// check fires before anything is written to the channel.
func (c *Client) Call(method string, params any) (json.RawMessage, error) {
	if method == MethodInitialize {
		// initialize has its own gate: legal exactly once, from Unstarted
		return c.Initialize(params)
	}
	if err := c.session.CheckSend(method); err != nil {
		return nil, err
	}
	return c.roundTrip(method, params, c.requestTimeout)
}

// Notify sends a fire-and-forget notification, subject to the same session
// gating as requests. The initialized notification has its own rule: a
// repeat while already initialized is a no-op for the state machine.
func (c *Client) Notify(method string, params any) error {
	var gateErr error
	if method == MethodInitialized {
		gateErr = c.session.NotifyInitialized()
	} else {
		gateErr = c.session.CheckSend(method)
	}
	if gateErr != nil {
		return gateErr
	}

	msg, err := rpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	return c.ch.Send(msg)
}

// roundTrip runs one register/send/await cycle. Exactly one table entry per
// request; the entry settles exactly once.
func (c *Client) roundTrip(method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := c.ids.Next()
	msg, err := rpc.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	done, err := c.table.Register(id, method, timeout)
	if err != nil {
		return nil, err
	}
	if err := c.ch.Send(msg); err != nil {
		c.table.Fail(id, err)
		<-done
		return nil, err
	}

	out := <-done
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Result, nil
}

// dispatch is the channel's sole inbound subscriber. Classification order:
// response, server notification, server-initiated request, malformed.
func (c *Client) dispatch(msg rpc.Message) {
	switch msg.Kind() {
	case rpc.KindResponse:
		if err := c.table.Resolve(msg); err != nil {
			// Stale or unknown id: a server protocol violation or a
			// harness bug. Logged and dropped, the session survives.
			log.Warn("Dropping response: %v", err)
		}
	case rpc.KindNotification:
		if c.notifySink != nil {
			c.notifySink(msg)
			return
		}
		log.Debug("Dropping server notification %s: %s", msg.Method, msg.Params)
	case rpc.KindRequest:
		// Reply off the read loop: blocking here would deadlock if the
		// server waits for our answer before sending anything else.
		go c.answerServerRequest(msg)
	default:
		log.Warn("Dropping malformed message: id=%v method=%q", msg.ID, msg.Method)
	}
}

// answerServerRequest replies to a server-initiated request. The default is
// an empty success result so an unanswered request never stalls the server.
func (c *Client) answerServerRequest(msg rpc.Message) {
	log.Debug("Server request %s (id %d)", msg.Method, *msg.ID)

	var result any
	if c.requestHandler != nil {
		r, err := c.requestHandler(msg.Method, msg.Params)
		if err != nil {
			id := *msg.ID
			resp := rpc.Message{
				JSONRPC: rpc.Version,
				ID:      &id,
				Error:   &rpc.Error{Code: -32603, Message: err.Error()},
			}
			if sendErr := c.ch.Send(resp); sendErr != nil {
				log.Warn("Failed to answer server request %s: %v", msg.Method, sendErr)
			}
			return
		}
		result = r
	}

	resp, err := rpc.NewResponse(*msg.ID, result)
	if err != nil {
		log.Warn("Failed to encode reply to server request %s: %v", msg.Method, err)
		return
	}
	if err := c.ch.Send(resp); err != nil {
		log.Warn("Failed to answer server request %s: %v", msg.Method, err)
	}
}
