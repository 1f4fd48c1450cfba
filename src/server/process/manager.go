package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"lspclient/src/internal/types"
)

// Handle is a running language server. The Supervisor owns it exclusively; the
// streams are closed and the handle discarded once the process has exited.
type Handle struct {
	Stdin   io.WriteCloser
	Stdout  io.ReadCloser
	Stderr  io.ReadCloser
	PID     int
	Command string

	wait    func() error
	kill    func() error
	exited  chan struct{}
	exitErr error
	drained chan struct{}

	monitorOnce sync.Once
	releaseOnce sync.Once
	drainOnce   sync.Once
}

// NewHandle assembles a handle from already-started process parts. wait must
// block until the process exits; kill forcibly terminates it.
func NewHandle(command string, pid int, stdin io.WriteCloser, stdout, stderr io.ReadCloser, wait, kill func() error) *Handle {
	return &Handle{
		Stdin:   stdin,
		Stdout:  stdout,
		Stderr:  stderr,
		PID:     pid,
		Command: command,
		wait:    wait,
		kill:    kill,
		exited:  make(chan struct{}),
		drained: make(chan struct{}),
	}
}

// Exited is closed when the process has exited
func (h *Handle) Exited() <-chan struct{} {
	return h.exited
}

// ExitErr returns the exit status error; valid after Exited is closed
func (h *Handle) ExitErr() error {
	select {
	case <-h.exited:
		return h.exitErr
	default:
		return nil
	}
}

// HasExited reports without blocking whether the process has exited
func (h *Handle) HasExited() bool {
	select {
	case <-h.exited:
		return true
	default:
		return false
	}
}

// monitor blocks until the process exits and records the result
func (h *Handle) monitor() {
	h.monitorOnce.Do(func() {
		h.exitErr = h.wait()
		close(h.exited)
	})
}

// Drained is closed once the read loop has finished with stdout
func (h *Handle) Drained() <-chan struct{} {
	return h.drained
}

// markDrained closes stdout after the read loop has returned
func (h *Handle) markDrained() {
	h.drainOnce.Do(func() {
		if h.Stdout != nil {
			h.Stdout.Close()
		}
		close(h.drained)
	})
}

// release closes all pipes
func (h *Handle) release() {
	h.releaseOnce.Do(func() {
		if h.Stdin != nil {
			h.Stdin.Close()
		}
		if h.Stdout != nil {
			h.Stdout.Close()
		}
		if h.Stderr != nil {
			h.Stderr.Close()
		}
	})
}

// Launcher starts a language server process
type Launcher interface {
	Launch(config types.ClientConfig) (*Handle, error)
}

// ExecLauncher starts servers as local subprocesses
type ExecLauncher struct{}

// Launch initializes and starts an LSP server process
func (ExecLauncher) Launch(config types.ClientConfig) (*Handle, error) {
	cmd := exec.Command(config.Command, config.Args...)

	// Use the configured directory, else the current one, else /tmp
	switch {
	case config.WorkingDir != "":
		cmd.Dir = config.WorkingDir
	default:
		if wd, err := os.Getwd(); err == nil {
			cmd.Dir = wd
		} else {
			cmd.Dir = os.TempDir()
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("failed to start LSP server: %w", err)
	}

	// Process.Wait rather than cmd.Wait: cmd.Wait closes the pipes, which would
	// race the reads still draining stdout and stderr.
	proc := cmd.Process
	wait := func() error {
		state, err := proc.Wait()
		if err != nil {
			return err
		}
		if !state.Success() {
			return &exec.ExitError{ProcessState: state}
		}
		return nil
	}
	return NewHandle(config.Command, proc.Pid, stdin, stdout, stderr, wait, proc.Kill), nil
}
