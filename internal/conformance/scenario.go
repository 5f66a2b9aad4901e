// Package conformance drives the ordered protocol scenario against a live
// language server and collects per-step pass/fail results.
package conformance

import (
	"encoding/json"
	"fmt"
	"strings"

	"curlsp.dev/conformance/internal/client"
	"curlsp.dev/conformance/internal/log"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Expected hover content for `curl --insecure`, byte for byte
const insecureHoverValue = "`-k`, `--insecure` \n\n Allow insecure server connections when using SSL"

// Documents exercised by the shipped scenario
const (
	completionDocURI  = "file:///conformance/completion.sh"
	completionDocText = "curl --ins  "
	hoverDocURI       = "file:///conformance/hover.sh"
	hoverDocText      = "curl --insecure "
	scenarioLanguage  = "shellscript"
	featureColumn     = 10
)

// StepResult is the outcome of one scenario step. Failures carry the raw
// payload so the offending message can be diagnosed from the report alone.
type StepResult struct {
	Name   string
	Method string
	Passed bool
	Detail string
	Raw    json.RawMessage
}

// Document is an extra fixture the driver opens before the feature steps
type Document struct {
	URI        string
	LanguageID string
	Text       string
}

// Options configures a scenario run
type Options struct {
	Expect   CapabilityExpectations
	RootURI  string
	Fixtures []Document
}

// Scenario runs the ordered interaction sequence: initialize, capability
// check, initialized, didOpen, completion, hover, shutdown. Steps that
// depend on a prior response do not run until it settles; a failed required
// step aborts the remainder. Shutdown always runs.
type Scenario struct {
	client  *client.Client
	opts    Options
	results []StepResult
}

// NewScenario creates a scenario against an already-started client
func NewScenario(c *client.Client, opts Options) *Scenario {
	if opts.RootURI == "" {
		opts.RootURI = "file:///conformance"
	}
	return &Scenario{client: c, opts: opts}
}

// Run executes the scenario and returns every step's result
func (s *Scenario) Run() (results []StepResult) {
	defer func() { results = s.results }()
	defer s.shutdown()

	if !s.initialize() {
		return s.results
	}
	s.checkCapabilities()
	if !s.openDocuments() {
		return s.results
	}
	s.completion()
	s.hover()
	return s.results
}

// Passed reports whether every step passed
func Passed(results []StepResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return len(results) > 0
}

func (s *Scenario) initialize() bool {
	params := map[string]any{
		"processId": nil,
		"rootUri":   s.opts.RootURI,
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"hover": map[string]any{
					"contentFormat": []string{"markdown", "plaintext"},
				},
				"completion": map[string]any{
					"completionItem": map[string]any{
						"snippetSupport":      true,
						"documentationFormat": []string{"markdown", "plaintext"},
					},
				},
			},
		},
	}

	if _, err := s.client.Initialize(params); err != nil {
		s.fail("initialize", client.MethodInitialize, err.Error(), nil)
		return false
	}
	s.pass("initialize", client.MethodInitialize, "handshake completed")
	return true
}

func (s *Scenario) checkCapabilities() {
	caps := s.client.Capabilities()
	if violations := s.opts.Expect.Check(caps); len(violations) > 0 {
		s.fail("capabilities", client.MethodInitialize, strings.Join(violations, "; "), caps)
		return
	}
	s.pass("capabilities", client.MethodInitialize, "capability surface matches the allow-list")
}

func (s *Scenario) openDocuments() bool {
	if err := s.client.Initialized(); err != nil {
		s.fail("initialized", client.MethodInitialized, err.Error(), nil)
		return false
	}
	s.pass("initialized", client.MethodInitialized, "notification sent")

	docs := append([]Document{
		{URI: completionDocURI, LanguageID: scenarioLanguage, Text: completionDocText},
		{URI: hoverDocURI, LanguageID: scenarioLanguage, Text: hoverDocText},
	}, s.opts.Fixtures...)

	for _, doc := range docs {
		if err := s.client.DidOpen(doc.URI, doc.LanguageID, doc.Text); err != nil {
			s.fail("didOpen", client.MethodDidOpen, fmt.Sprintf("%s: %v", doc.URI, err), nil)
			return false
		}
	}
	s.pass("didOpen", client.MethodDidOpen, fmt.Sprintf("opened %d documents", len(docs)))
	return true
}

func (s *Scenario) completion() {
	items, err := s.client.Completion(completionDocURI, 0, featureColumn)
	if err != nil {
		s.fail("completion", client.MethodCompletion, err.Error(), nil)
		return
	}
	if len(items) == 0 {
		s.fail("completion", client.MethodCompletion, "expected at least one completion item", nil)
		return
	}
	s.pass("completion", client.MethodCompletion, fmt.Sprintf("%d items, first %q", len(items), items[0].Label))
}

func (s *Scenario) hover() {
	hover, err := s.client.Hover(hoverDocURI, 0, featureColumn)
	if err != nil {
		s.fail("hover", client.MethodHover, err.Error(), nil)
		return
	}
	if hover == nil {
		s.fail("hover", client.MethodHover, "expected hover content, got null", nil)
		return
	}

	content, ok := hover.Contents.(protocol.MarkupContent)
	if !ok {
		raw, _ := json.Marshal(hover.Contents)
		s.fail("hover", client.MethodHover, "hover contents are not markup content", raw)
		return
	}
	if content.Kind != protocol.MarkupKindMarkdown {
		s.fail("hover", client.MethodHover, fmt.Sprintf("contents.kind = %q, want markdown", content.Kind), nil)
		return
	}
	if content.Value != insecureHoverValue {
		raw, _ := json.Marshal(content.Value)
		s.fail("hover", client.MethodHover, fmt.Sprintf("contents.value mismatch: got %q", content.Value), raw)
		return
	}
	s.pass("hover", client.MethodHover, "markdown content matches")
}

func (s *Scenario) shutdown() {
	if err := s.client.Shutdown(); err != nil {
		s.fail("shutdown", client.MethodShutdown, err.Error(), nil)
		return
	}
	s.pass("shutdown", client.MethodShutdown, "session terminated")
}

func (s *Scenario) pass(name, method, detail string) {
	log.Info("PASS %s: %s", name, detail)
	s.results = append(s.results, StepResult{Name: name, Method: method, Passed: true, Detail: detail})
}

func (s *Scenario) fail(name, method, detail string, raw json.RawMessage) {
	log.Error("FAIL %s: %s", name, detail)
	s.results = append(s.results, StepResult{Name: name, Method: method, Detail: detail, Raw: raw})
}
