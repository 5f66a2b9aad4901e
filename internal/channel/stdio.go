package channel

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"

	"curlsp.dev/conformance/internal/log"
)

// Stdio spawns the language server as a subprocess and speaks framed
// JSON-RPC over its stdin/stdout. The server's stderr is drained to the
// harness log so server-side failures show up in test output.
type Stdio struct {
	streamCore

	command string
	args    []string

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewStdio creates a stdio channel for the given server command. The
// process is not spawned until Start.
func NewStdio(command string, args ...string) *Stdio {
	return &Stdio{command: command, args: args}
}

// Start spawns the server process and begins pumping inbound messages to
// the registered handler. Spawn failure is fatal: no retries.
func (s *Stdio) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, s.command, s.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return &SpawnError{Target: s.commandLine(), Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return &SpawnError{Target: s.commandLine(), Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return &SpawnError{Target: s.commandLine(), Err: err}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return &SpawnError{Target: s.commandLine(), Err: err}
	}

	s.cmd = cmd
	s.cancel = cancel
	s.stdin = stdin
	s.writer = stdin
	s.reader = bufio.NewReader(stdout)

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Debug("[server] %s", scanner.Text())
		}
	}()
	go s.readLoop()

	log.Info("Spawned language server: %s (pid %d)", s.commandLine(), cmd.Process.Pid)
	return nil
}

// Stop terminates the server process. Idempotent and safe to call whether
// or not the process is still alive, or was never started.
func (s *Stdio) Stop() error {
	s.stopOnce.Do(func() {
		if s.cmd == nil {
			return
		}
		// Closing stdin lets a well-behaved server exit on its own before
		// the context cancel kills it.
		if s.stdin != nil {
			s.stdin.Close()
		}
		s.cancel()
		if err := s.cmd.Wait(); err != nil {
			// Expected when the cancel had to kill the process.
			log.Debug("Server exited: %v", err)
		}
	})
	return nil
}

func (s *Stdio) commandLine() string {
	if len(s.args) == 0 {
		return s.command
	}
	return s.command + " " + strings.Join(s.args, " ")
}
