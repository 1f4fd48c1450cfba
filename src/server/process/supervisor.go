// Package process owns the language server subprocess: it starts it, watches
// for its exit, drains its stderr and stops it.
package process

import (
	"bufio"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lspclient/src/internal/common"
	"lspclient/src/internal/constants"
	"lspclient/src/internal/errors"
	"lspclient/src/internal/types"
	lsperrors "lspclient/src/server/errors"
	"lspclient/src/server/protocol"
)

// ServeFunc runs the read loop over a freshly bound transport. It returns when
// the server's output closes.
type ServeFunc func(ctx context.Context, t *protocol.Transport) error

// ShutdownSender interface for sending LSP shutdown messages
type ShutdownSender interface {
	SendShutdownRequest(ctx context.Context) error
	SendExitNotification(ctx context.Context) error
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithLauncher replaces the subprocess launcher
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) { s.launcher = l }
}

// WithTap observes every payload on the transport
func WithTap(tap protocol.Tap) Option {
	return func(s *Supervisor) { s.tap = tap }
}

// WithLogger sets the supervisor's logger
func WithLogger(l *common.SafeLogger) Option {
	return func(s *Supervisor) { s.log = l }
}

// WithTeardown registers a hook run once each time a handle is torn down
func WithTeardown(fn func(cause error)) Option {
	return func(s *Supervisor) { s.teardown = fn }
}

// WithShutdownTimeout sets how long Stop waits before killing the server
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.shutdownTimeout = d }
}

// Supervisor manages one language server process at a time
type Supervisor struct {
	config          types.ClientConfig
	serve           ServeFunc
	launcher        Launcher
	tap             protocol.Tap
	log             *common.SafeLogger
	teardown        func(cause error)
	shutdownTimeout time.Duration
	translator      lsperrors.ErrorTranslator

	mu        sync.Mutex
	handle    *Handle
	transport *protocol.Transport
	group     *errgroup.Group
	cancel    context.CancelFunc
	stopping  bool
}

// NewSupervisor creates a supervisor that runs serve for every started server
func NewSupervisor(config types.ClientConfig, serve ServeFunc, opts ...Option) *Supervisor {
	s := &Supervisor{
		config:          config,
		serve:           serve,
		launcher:        ExecLauncher{},
		log:             common.LSPLogger,
		shutdownTimeout: constants.ProcessShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.translator = lsperrors.NewLSPErrorTranslator(s.log)
	return s
}

// Start launches the server unless one is already alive
func (s *Supervisor) Start() error {
	if s.Alive() {
		return nil
	}
	s.settle()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		return nil
	}

	h, err := s.launcher.Launch(s.config)
	if err != nil {
		return errors.NewProcessError(s.config.Command, errors.ProcessStart, err)
	}
	s.log.Info("Started LSP server process %s: PID %d", h.Command, h.PID)

	var topts []protocol.TransportOption
	if s.tap != nil {
		topts = append(topts, protocol.WithTap(s.tap))
	}
	transport := protocol.NewTransport(h.Stdout, h.Stdin, topts...)

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.monitor(h)
		return nil
	})
	group.Go(func() error {
		s.drainStderr(h)
		return nil
	})
	group.Go(func() error {
		defer h.markDrained()
		return s.serve(gctx, transport)
	})

	s.handle = h
	s.transport = transport
	s.group = group
	s.cancel = cancel
	s.stopping = false
	return nil
}

func (s *Supervisor) monitor(h *Handle) {
	h.monitor()
	err := h.ExitErr()

	s.mu.Lock()
	intentional := s.stopping && s.handle == h
	s.mu.Unlock()

	switch {
	case err != nil && !intentional:
		s.log.Error("LSP server %s crashed unexpectedly: %v", h.Command, err)
	case err != nil:
		s.log.Debug("LSP server %s exited during stop: %v", h.Command, err)
	case intentional:
		s.log.Info("LSP server %s exited normally", h.Command)
	default:
		s.log.Warn("LSP server %s exited unexpectedly", h.Command)
	}

	s.awaitDrain(h)

	s.mu.Lock()
	var hook func()
	if s.handle == h {
		hook = s.teardownLocked(err)
	}
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// awaitDrain gives the read loop time to deliver what the server wrote before
// it exited. Stdout only reaches EOF once every holder of the write end is gone.
func (s *Supervisor) awaitDrain(h *Handle) {
	timer := time.NewTimer(constants.ExitDrainTimeout)
	defer timer.Stop()
	select {
	case <-h.Drained():
	case <-timer.C:
		s.log.Warn("LSP server %s exited but its output is still open; closing it", h.Command)
	}
}

// drainStderr logs the server's diagnostics. Stderr is never parsed as protocol data.
func (s *Supervisor) drainStderr(h *Handle) {
	if h.Stderr == nil {
		return
	}
	scanner := bufio.NewScanner(h.Stderr)
	scanner.Buffer(make([]byte, 0, 4096), constants.StderrLineLimit)

	const contextLines = 5
	var recent []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !s.translator.TranslateAndLogError(h.Command, line, recent) {
			s.log.Debug("stderr(%s): %s", h.Command, line)
		}
		recent = append(recent, line)
		if len(recent) > contextLines {
			recent = recent[1:]
		}
	}
}

// teardownLocked releases the current handle. The returned hook must be run
// after s.mu is released.
func (s *Supervisor) teardownLocked(cause error) func() {
	h := s.handle
	if h == nil {
		return func() {}
	}
	h.release()
	s.handle = nil
	s.transport = nil
	if s.cancel != nil {
		s.cancel()
	}
	if cause == nil {
		cause = errors.ErrShutdown
	}
	teardown := s.teardown
	return func() {
		if teardown != nil {
			teardown(cause)
		}
	}
}

// Alive reports without blocking whether the server is running. Detecting an
// exit tears the handle down once its output has been read to the end;
// until then the exit monitor finishes the teardown.
func (s *Supervisor) Alive() bool {
	s.mu.Lock()
	h := s.handle
	if h == nil {
		s.mu.Unlock()
		return false
	}
	if !h.HasExited() {
		s.mu.Unlock()
		return true
	}
	select {
	case <-h.Drained():
	default:
		s.mu.Unlock()
		return false
	}
	hook := s.teardownLocked(h.ExitErr())
	s.mu.Unlock()
	hook()
	return false
}

// settle finishes tearing down an exited handle whose output is still draining
func (s *Supervisor) settle() {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil || !h.HasExited() {
		return
	}
	s.awaitDrain(h)

	s.mu.Lock()
	var hook func()
	if s.handle == h {
		hook = s.teardownLocked(h.ExitErr())
	}
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// Send writes msg to the server
func (s *Supervisor) Send(msg *protocol.Message) error {
	s.mu.Lock()
	h, t := s.handle, s.transport
	s.mu.Unlock()

	if h == nil || h.HasExited() {
		return errors.NewProcessError(s.config.Command, errors.ProcessNotAlive, nil)
	}
	if err := t.Write(msg); err != nil {
		return errors.NewProcessError(s.config.Command, errors.ProcessCommunication, err)
	}
	return nil
}

// PID returns the server's process id, or 0 when none is running
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return 0
	}
	return s.handle.PID
}

// Wait blocks until the goroutines of the most recently started server finish
// and returns the read loop's error, if any
func (s *Supervisor) Wait() error {
	s.mu.Lock()
	group := s.group
	s.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// Stop terminates the server gracefully: shutdown request, exit notification,
// then a kill if it has not exited in time
func (s *Supervisor) Stop(ctx context.Context, sender ShutdownSender) error {
	s.mu.Lock()
	h := s.handle
	group := s.group
	if h == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.mu.Unlock()

	if sender != nil && !h.HasExited() {
		s.sendShutdown(ctx, sender)
	}
	s.terminate(h)

	s.mu.Lock()
	var hook func()
	if s.handle == h {
		hook = s.teardownLocked(errors.ErrShutdown)
	}
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			s.log.Debug("Read loop ended during stop: %v", err)
		}
		return nil
	case <-ctx.Done():
		return errors.NewProcessError(h.Command, errors.ProcessStop, ctx.Err())
	}
}

// sendShutdown sends shutdown sequence to LSP server through the ShutdownSender
func (s *Supervisor) sendShutdown(ctx context.Context, sender ShutdownSender) {
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownRequestTimeout)
	defer shutdownCancel()
	if err := sender.SendShutdownRequest(shutdownCtx); err != nil {
		s.log.Debug("shutdown request failed: %v", err)
	}

	exitCtx, exitCancel := context.WithTimeout(ctx, constants.ExitNotifyTimeout)
	defer exitCancel()
	if err := sender.SendExitNotification(exitCtx); err != nil {
		s.log.Debug("exit notification failed: %v", err)
	}
}
