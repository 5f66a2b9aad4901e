package rpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version used on every envelope.
const Version = "2.0"

// Kind classifies an inbound message. Classification follows the order the
// dispatcher applies: response, notification, server-initiated request,
// malformed.
type Kind int

const (
	// KindMalformed is a message missing the fields any valid shape requires
	KindMalformed Kind = iota
	// KindRequest carries both a method and an id and expects a response
	KindRequest
	// KindNotification carries a method and no id; fire-and-forget
	KindNotification
	// KindResponse carries an id and exactly one of result/error
	KindResponse
)

// String returns a human-readable name for the kind
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "malformed"
	}
}

// Message is a JSON-RPC 2.0 envelope: a tagged union over request,
// notification and response. Which fields are set determines the kind.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a server-reported JSON-RPC error object. It is delivered to the
// caller that issued the failing request, never raised as a channel fault.
type Error struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Kind classifies the message. A message with an id and a result or error is
// a response; a method without an id is a notification; a method with an id
// is a server-initiated request; anything else is malformed.
func (m *Message) Kind() Kind {
	switch {
	case m.ID != nil && (m.Result != nil || m.Error != nil):
		return KindResponse
	case m.Method != "" && m.ID == nil:
		return KindNotification
	case m.Method != "" && m.ID != nil:
		return KindRequest
	default:
		return KindMalformed
	}
}

// NewRequest builds a request envelope, marshaling params
func NewRequest(id int64, method string, params any) (Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Message{}, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return Message{JSONRPC: Version, ID: &id, Method: method, Params: raw}, nil
}

// NewNotification builds a notification envelope, marshaling params
func NewNotification(method string, params any) (Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Message{}, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return Message{JSONRPC: Version, Method: method, Params: raw}, nil
}

// NewResponse builds a success response envelope. A nil result is encoded as
// an explicit JSON null, which JSON-RPC requires for empty results.
func NewResponse(id int64, result any) (Message, error) {
	raw := json.RawMessage("null")
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return Message{}, fmt.Errorf("marshal result for id %d: %w", id, err)
		}
		raw = data
	}
	return Message{JSONRPC: Version, ID: &id, Result: raw}, nil
}

// Decode parses a raw body into a Message. Unparseable JSON or an envelope
// that classifies as malformed yields a MalformedMessageError.
func Decode(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, &MalformedMessageError{Raw: body, Reason: err.Error()}
	}
	if msg.Kind() == KindMalformed {
		return Message{}, &MalformedMessageError{Raw: body, Reason: "missing required fields"}
	}
	return msg, nil
}

// Encode serializes the message body
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}
