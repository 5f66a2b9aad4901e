package client

import (
	"encoding/json"
	"fmt"

	"curlsp.dev/conformance/internal/log"
	"curlsp.dev/conformance/internal/rpc"
	"curlsp.dev/conformance/internal/session"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// LSP method names the harness exercises
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "initialized"
	MethodShutdown    = "shutdown"
	MethodExit        = "exit"
	MethodDidOpen     = "textDocument/didOpen"
	MethodCompletion  = "textDocument/completion"
	MethodHover       = "textDocument/hover"
)

// Initialize sends the initialize request and captures the server's
// capabilities on success. Legal only as the session's first request.
func (c *Client) Initialize(params any) (json.RawMessage, error) {
	if err := c.session.BeginInitialize(); err != nil {
		return nil, err
	}

	result, err := c.roundTrip(MethodInitialize, params, c.requestTimeout)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Capabilities json.RawMessage `json:"capabilities"`
	}
	if err := json.Unmarshal(result, &decoded); err != nil {
		return nil, fmt.Errorf("decode initialize result: %w", err)
	}
	if err := c.session.CompleteInitialize(decoded.Capabilities); err != nil {
		return nil, err
	}
	return result, nil
}

// Initialized sends the initialized notification completing the handshake.
// Idempotent while initialized.
func (c *Client) Initialized() error {
	return c.Notify(MethodInitialized, map[string]any{})
}

// DidOpen opens a document on the server
func (c *Client) DidOpen(uri, languageID, text string) error {
	return c.Notify(MethodDidOpen, map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": languageID,
			"version":    1,
			"text":       text,
		},
	})
}

// Completion requests completions at a position. The server may answer with
// a bare item array or a completion-list envelope; both decode to items.
func (c *Client) Completion(uri string, line, character int) ([]protocol.CompletionItem, error) {
	result, err := c.Call(MethodCompletion, positionParams(uri, line, character))
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	if result[0] == '[' {
		var items []protocol.CompletionItem
		if err := json.Unmarshal(result, &items); err != nil {
			return nil, fmt.Errorf("decode completion items: %w", err)
		}
		return items, nil
	}

	var list protocol.CompletionList
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, fmt.Errorf("decode completion list: %w", err)
	}
	return list.Items, nil
}

// Hover requests hover content at a position. A null result decodes to nil.
func (c *Client) Hover(uri string, line, character int) (*protocol.Hover, error) {
	result, err := c.Call(MethodHover, positionParams(uri, line, character))
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var hover protocol.Hover
	if err := json.Unmarshal(result, &hover); err != nil {
		return nil, fmt.Errorf("decode hover: %w", err)
	}
	return &hover, nil
}

// Shutdown drives the shutdown handshake (shutdown request, exit
// notification) where the session state allows it, then terminates the
// channel and fails anything still pending. Safe from any state.
func (c *Client) Shutdown() error {
	if c.session.Shutdown() == session.ShuttingDown {
		if _, err := c.roundTrip(MethodShutdown, nil, c.requestTimeout); err != nil {
			log.Warn("Shutdown request failed: %v", err)
		}
		if msg, err := rpc.NewNotification(MethodExit, nil); err == nil {
			if err := c.ch.Send(msg); err != nil {
				log.Warn("Exit notification failed: %v", err)
			}
		}
	}
	return c.Close()
}

func positionParams(uri string, line, character int) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": line, "character": character},
	}
}
