package conformance

import (
	"encoding/json"
	"fmt"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// CapabilityExpectations is the allow-list a conforming server must match:
// required capabilities with their expected shapes, plus capabilities that
// must be absent. Any present-but-forbidden capability is flagged.
type CapabilityExpectations struct {
	SyncKind        protocol.TextDocumentSyncKind `yaml:"syncKind" json:"syncKind"`
	ResolveProvider bool                          `yaml:"resolveProvider" json:"resolveProvider"`
	HoverProvider   bool                          `yaml:"hoverProvider" json:"hoverProvider"`
	Forbidden       []string                      `yaml:"forbidden" json:"forbidden"`
}

// DefaultCapabilityExpectations encodes the curl language server's expected
// capability surface.
func DefaultCapabilityExpectations() CapabilityExpectations {
	return CapabilityExpectations{
		SyncKind:        protocol.TextDocumentSyncKindIncremental,
		ResolveProvider: true,
		HoverProvider:   true,
		Forbidden: []string{
			"codeActionProvider",
			"foldingRangeProvider",
			"renameProvider",
		},
	}
}

// Check validates raw server capabilities against the expectations and
// returns one violation message per mismatch. An empty slice means the
// capability surface conforms.
func (e CapabilityExpectations) Check(caps json.RawMessage) []string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(caps, &fields); err != nil {
		return []string{fmt.Sprintf("capabilities are not an object: %v", err)}
	}

	var violations []string

	if kind, err := syncKind(fields["textDocumentSync"]); err != nil {
		violations = append(violations, err.Error())
	} else if kind != e.SyncKind {
		violations = append(violations, fmt.Sprintf("textDocumentSync = %d, want %d", kind, e.SyncKind))
	}

	if e.ResolveProvider {
		var completion struct {
			ResolveProvider bool `json:"resolveProvider"`
		}
		raw, ok := fields["completionProvider"]
		if !ok {
			violations = append(violations, "completionProvider is absent")
		} else if err := json.Unmarshal(raw, &completion); err != nil {
			violations = append(violations, fmt.Sprintf("completionProvider is malformed: %v", err))
		} else if !completion.ResolveProvider {
			violations = append(violations, "completionProvider.resolveProvider is not true")
		}
	}

	if e.HoverProvider && !providerEnabled(fields["hoverProvider"]) {
		violations = append(violations, "hoverProvider is not enabled")
	}

	for _, name := range e.Forbidden {
		if raw, ok := fields[name]; ok && string(raw) != "false" && string(raw) != "null" {
			violations = append(violations, fmt.Sprintf("%s is present but must be absent", name))
		}
	}

	return violations
}

// syncKind accepts both legal spellings of the sync capability: a bare
// numeric kind, or TextDocumentSyncOptions carrying the kind in change.
func syncKind(raw json.RawMessage) (protocol.TextDocumentSyncKind, error) {
	if raw == nil {
		return 0, fmt.Errorf("textDocumentSync is absent")
	}

	var kind protocol.TextDocumentSyncKind
	if err := json.Unmarshal(raw, &kind); err == nil {
		return kind, nil
	}

	var options struct {
		Change *protocol.TextDocumentSyncKind `json:"change"`
	}
	if err := json.Unmarshal(raw, &options); err != nil {
		return 0, fmt.Errorf("textDocumentSync is malformed: %s", raw)
	}
	if options.Change == nil {
		return 0, fmt.Errorf("textDocumentSync.change is absent")
	}
	return *options.Change, nil
}

// providerEnabled treats a bool true or any options object as enabled
func providerEnabled(raw json.RawMessage) bool {
	if raw == nil {
		return false
	}
	switch string(raw) {
	case "false", "null":
		return false
	}
	return true
}
