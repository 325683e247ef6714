package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ErrModuleRunning is returned by Start while a previous run is active.
var ErrModuleRunning = errors.New("embedded module already running")

// Module launches the embedded module as a child process. The module
// connects back to the host socket named in its environment and reports
// events on the bridge channel.
type Module struct {
	command string
	dir     string
	env     map[string]string
	logger  *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	exitErr error
}

// NewModule creates a launcher for command, run through /bin/sh.
func NewModule(command, dir string, env map[string]string, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{command: command, dir: dir, env: env, logger: logger}
}

// Configured reports whether a command was supplied.
func (m *Module) Configured() bool {
	return m != nil && m.command != ""
}

// Start spawns the module. The returned channel is closed when it exits.
func (m *Module) Start() (<-chan struct{}, error) {
	if !m.Configured() {
		return nil, errors.New("no module command configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil {
		return nil, ErrModuleRunning
	}

	cmd := exec.Command("/bin/sh", "-c", m.command)
	cmd.Dir = m.dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = os.Environ()
	for k, v := range m.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", m.command, err)
	}

	done := make(chan struct{})
	m.cmd = cmd
	m.done = done
	m.exitErr = nil
	m.logger.Info("module started", "pid", cmd.Process.Pid, "command", m.command)

	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		m.relay(stdoutPipe, "stdout", slog.LevelInfo)
	}()
	go func() {
		defer pipes.Done()
		m.relay(stderrPipe, "stderr", slog.LevelWarn)
	}()

	go func() {
		pipes.Wait()
		err := cmd.Wait()

		m.mu.Lock()
		m.cmd = nil
		m.exitErr = err
		m.mu.Unlock()

		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		m.logger.Info("module exited", "exit_code", exitCode, "err", err)
		close(done)
	}()

	return done, nil
}

// relay logs every line the module writes to r at level.
func (m *Module) relay(r io.Reader, stream string, level slog.Level) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, 1<<20)
	for sc.Scan() {
		m.logger.Log(context.Background(), level, "module output", "stream", stream, "line", sc.Text())
	}
}

// Running reports whether the module process is alive.
func (m *Module) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cmd != nil
}

// Err returns the exit error of the last finished run.
func (m *Module) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitErr
}

// Stop sends SIGTERM to the module's process group and waits for it to
// exit, escalating to SIGKILL after grace.
func (m *Module) Stop(grace time.Duration) {
	m.mu.Lock()
	cmd, done := m.cmd, m.done
	m.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(grace):
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
	}
}
