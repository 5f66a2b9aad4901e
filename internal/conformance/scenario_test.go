package conformance_test

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"

	"curlsp.dev/conformance/internal/channel"
	"curlsp.dev/conformance/internal/client"
	"curlsp.dev/conformance/internal/conformance"
	"curlsp.dev/conformance/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const insecureHover = "`-k`, `--insecure` \n\n Allow insecure server connections when using SSL"

// curlServer is a scripted stand-in for the curl language server: it speaks
// framed JSON-RPC on its end of a pipe and answers the methods the scenario
// exercises. Response payloads are configurable so tests can model both a
// conforming and a misbehaving server.
type curlServer struct {
	t    *testing.T
	conn net.Conn

	capabilities map[string]any
	completion   any
	hover        any
}

func newCurlServer(t *testing.T, conn net.Conn) *curlServer {
	t.Helper()
	s := &curlServer{
		t:    t,
		conn: conn,
		capabilities: map[string]any{
			"textDocumentSync":   2,
			"completionProvider": map[string]any{"resolveProvider": true},
			"hoverProvider":      true,
		},
		completion: map[string]any{
			"isIncomplete": false,
			"items": []map[string]any{
				{"label": "--insecure"},
				{"label": "--interface"},
			},
		},
		hover: map[string]any{
			"contents": map[string]any{"kind": "markdown", "value": insecureHover},
		},
	}
	go s.loop()
	return s
}

func (s *curlServer) loop() {
	reader := bufio.NewReader(s.conn)
	for {
		body, err := rpc.ReadMessage(reader)
		if err != nil {
			return
		}
		msg, err := rpc.Decode(body)
		if err != nil {
			continue
		}
		if msg.Kind() != rpc.KindRequest {
			continue
		}

		var result any
		switch msg.Method {
		case "initialize":
			result = map[string]any{"capabilities": s.capabilities}
		case "textDocument/completion":
			result = s.completion
		case "textDocument/hover":
			result = s.hover
		case "shutdown":
			result = nil
		}
		resp, err := rpc.NewResponse(*msg.ID, result)
		require.NoError(s.t, err)
		respBody, err := resp.Encode()
		require.NoError(s.t, err)
		rpc.WriteMessage(s.conn, respBody)
	}
}

func runScenario(t *testing.T, configure func(*curlServer)) []conformance.StepResult {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	server := newCurlServer(t, serverEnd)
	if configure != nil {
		configure(server)
	}

	c := client.New(channel.NewStream(clientEnd))
	require.NoError(t, c.Start())

	return conformance.NewScenario(c, conformance.Options{
		Expect: conformance.DefaultCapabilityExpectations(),
	}).Run()
}

func stepByName(results []conformance.StepResult, name string) *conformance.StepResult {
	for i := range results {
		if results[i].Name == name {
			return &results[i]
		}
	}
	return nil
}

func TestScenarioAgainstConformingServer(t *testing.T) {
	results := runScenario(t, nil)

	require.True(t, conformance.Passed(results), "all steps should pass: %+v", results)
	for _, name := range []string{"initialize", "capabilities", "initialized", "didOpen", "completion", "hover", "shutdown"} {
		step := stepByName(results, name)
		require.NotNil(t, step, "missing step %s", name)
		assert.True(t, step.Passed, "step %s failed: %s", name, step.Detail)
	}
}

func TestScenarioStepOrder(t *testing.T) {
	results := runScenario(t, nil)

	var names []string
	for _, r := range results {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"initialize", "capabilities", "initialized", "didOpen", "completion", "hover", "shutdown"}, names)
}

func TestScenarioFlagsForbiddenCapability(t *testing.T) {
	results := runScenario(t, func(s *curlServer) {
		s.capabilities["codeActionProvider"] = true
	})

	assert.False(t, conformance.Passed(results))
	step := stepByName(results, "capabilities")
	require.NotNil(t, step)
	assert.False(t, step.Passed)
	assert.Contains(t, step.Detail, "codeActionProvider")

	// A capability failure is not fatal: later feature steps still run.
	assert.NotNil(t, stepByName(results, "hover"))
}

func TestScenarioEmptyCompletionFails(t *testing.T) {
	results := runScenario(t, func(s *curlServer) {
		s.completion = map[string]any{"isIncomplete": false, "items": []any{}}
	})

	step := stepByName(results, "completion")
	require.NotNil(t, step)
	assert.False(t, step.Passed)
	assert.Contains(t, step.Detail, "at least one")
}

func TestScenarioBareItemArrayAccepted(t *testing.T) {
	results := runScenario(t, func(s *curlServer) {
		s.completion = []map[string]any{{"label": "--insecure"}}
	})

	step := stepByName(results, "completion")
	require.NotNil(t, step)
	assert.True(t, step.Passed, step.Detail)
}

func TestScenarioHoverValueMismatch(t *testing.T) {
	results := runScenario(t, func(s *curlServer) {
		s.hover = map[string]any{
			"contents": map[string]any{"kind": "markdown", "value": "wrong documentation"},
		}
	})

	step := stepByName(results, "hover")
	require.NotNil(t, step)
	assert.False(t, step.Passed)
	assert.Contains(t, step.Detail, "mismatch")
	assert.NotEmpty(t, step.Raw, "failure should carry the offending payload")
}

func TestScenarioHoverKindMismatch(t *testing.T) {
	results := runScenario(t, func(s *curlServer) {
		s.hover = map[string]any{
			"contents": map[string]any{"kind": "plaintext", "value": insecureHover},
		}
	})

	step := stepByName(results, "hover")
	require.NotNil(t, step)
	assert.False(t, step.Passed)
	assert.Contains(t, step.Detail, "plaintext")
}

func TestScenarioNullHoverFails(t *testing.T) {
	results := runScenario(t, func(s *curlServer) {
		s.hover = nil
	})

	step := stepByName(results, "hover")
	require.NotNil(t, step)
	assert.False(t, step.Passed)
}

func TestPassed(t *testing.T) {
	assert.False(t, conformance.Passed(nil), "no steps is not a pass")
	assert.True(t, conformance.Passed([]conformance.StepResult{{Name: "x", Passed: true}}))
	assert.False(t, conformance.Passed([]conformance.StepResult{
		{Name: "x", Passed: true},
		{Name: "y", Passed: false},
	}))
}

func TestStepResultRawIsJSON(t *testing.T) {
	results := runScenario(t, func(s *curlServer) {
		s.hover = map[string]any{"contents": map[string]any{"kind": "markdown", "value": "nope"}}
	})
	step := stepByName(results, "hover")
	require.NotNil(t, step)

	var decoded any
	require.NoError(t, json.Unmarshal(step.Raw, &decoded))
}
