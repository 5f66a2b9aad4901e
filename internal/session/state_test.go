package session_test

import (
	"encoding/json"
	"testing"

	"curlsp.dev/conformance/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleHappyPath(t *testing.T) {
	m := session.NewMachine()
	assert.Equal(t, session.Unstarted, m.State())

	require.NoError(t, m.BeginInitialize())
	assert.Equal(t, session.Initializing, m.State())

	caps := json.RawMessage(`{"hoverProvider":true}`)
	require.NoError(t, m.CompleteInitialize(caps))
	assert.Equal(t, session.Initialized, m.State())
	assert.JSONEq(t, string(caps), string(m.Capabilities()))

	require.NoError(t, m.NotifyInitialized())
	require.NoError(t, m.CheckSend("textDocument/hover"))

	assert.Equal(t, session.ShuttingDown, m.Shutdown())
	assert.Equal(t, session.Terminated, m.Shutdown())
}

func TestInitializeOutOfOrder(t *testing.T) {
	t.Run("double initialize", func(t *testing.T) {
		m := session.NewMachine()
		require.NoError(t, m.BeginInitialize())

		err := m.BeginInitialize()
		var illegal *session.IllegalStateError
		require.ErrorAs(t, err, &illegal)
		assert.Equal(t, session.Initializing, illegal.State)
	})

	t.Run("initialize after initialized", func(t *testing.T) {
		m := initialized(t)
		var illegal *session.IllegalStateError
		require.ErrorAs(t, m.BeginInitialize(), &illegal)
	})

	t.Run("complete without begin", func(t *testing.T) {
		m := session.NewMachine()
		var illegal *session.IllegalStateError
		require.ErrorAs(t, m.CompleteInitialize(nil), &illegal)
	})
}

func TestFeatureRequestsGated(t *testing.T) {
	tests := []struct {
		name    string
		machine func(t *testing.T) *session.Machine
		legal   bool
	}{
		{"unstarted", func(t *testing.T) *session.Machine { return session.NewMachine() }, false},
		{"initializing", func(t *testing.T) *session.Machine {
			m := session.NewMachine()
			require.NoError(t, m.BeginInitialize())
			return m
		}, false},
		{"initialized", initialized, true},
		{"shutting down", func(t *testing.T) *session.Machine {
			m := initialized(t)
			m.Shutdown()
			return m
		}, false},
		{"terminated", func(t *testing.T) *session.Machine {
			m := session.NewMachine()
			m.Terminate()
			return m
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.machine(t).CheckSend("textDocument/completion")
			if tt.legal {
				assert.NoError(t, err)
			} else {
				var illegal *session.IllegalStateError
				require.ErrorAs(t, err, &illegal)
			}
		})
	}
}

func TestInitializedNotificationIdempotent(t *testing.T) {
	m := initialized(t)

	require.NoError(t, m.NotifyInitialized())
	require.NoError(t, m.NotifyInitialized(), "repeat initialized must be a no-op, not an error")

	t.Run("illegal before handshake", func(t *testing.T) {
		m := session.NewMachine()
		var illegal *session.IllegalStateError
		require.ErrorAs(t, m.NotifyInitialized(), &illegal)
	})
}

func TestShutdownFromEveryState(t *testing.T) {
	t.Run("unstarted terminates", func(t *testing.T) {
		m := session.NewMachine()
		assert.Equal(t, session.Terminated, m.Shutdown())
	})

	t.Run("initializing terminates", func(t *testing.T) {
		m := session.NewMachine()
		require.NoError(t, m.BeginInitialize())
		assert.Equal(t, session.Terminated, m.Shutdown())
	})

	t.Run("initialized begins shutting down", func(t *testing.T) {
		m := initialized(t)
		assert.Equal(t, session.ShuttingDown, m.Shutdown())
	})

	t.Run("terminated is a no-op", func(t *testing.T) {
		m := session.NewMachine()
		m.Terminate()
		assert.Equal(t, session.Terminated, m.Shutdown())
	})
}

func initialized(t *testing.T) *session.Machine {
	t.Helper()
	m := session.NewMachine()
	require.NoError(t, m.BeginInitialize())
	require.NoError(t, m.CompleteInitialize(json.RawMessage(`{}`)))
	return m
}
