// Package server implements a language server session: it owns the server
// process, the pending request table and the capability set, and exposes the
// editor-facing operations built on them.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"lspclient/src/internal/common"
	"lspclient/src/internal/constants"
	"lspclient/src/internal/errors"
	"lspclient/src/internal/types"
	"lspclient/src/server/capabilities"
	"lspclient/src/server/dispatch"
	"lspclient/src/server/documents"
	"lspclient/src/server/editor"
	"lspclient/src/server/pending"
	"lspclient/src/server/process"
	"lspclient/src/server/protocol"
	"lspclient/src/server/trace"
	"lspclient/src/server/watcher"
)

// Option configures a Session
type Option func(*sessionOptions)

type sessionOptions struct {
	launcher        process.Launcher
	trace           *trace.Store
	logger          *common.SafeLogger
	requestTimeout  time.Duration
	shutdownTimeout time.Duration
	watchRoot       string
	watchDelay      time.Duration
}

// WithLauncher replaces how the server process is started
func WithLauncher(l process.Launcher) Option {
	return func(o *sessionOptions) { o.launcher = l }
}

// WithTrace records every message of the session into store
func WithTrace(store *trace.Store) Option {
	return func(o *sessionOptions) { o.trace = store }
}

// WithLogger sets the parent logger; the session logs under a child named by its id
func WithLogger(l *common.SafeLogger) Option {
	return func(o *sessionOptions) { o.logger = l }
}

// WithRequestTimeout evicts requests unanswered after d. Zero disables eviction.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *sessionOptions) { o.requestTimeout = d }
}

// WithShutdownTimeout bounds how long Close waits for the server to exit
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *sessionOptions) { o.shutdownTimeout = d }
}

// WithWatch resynchronizes open documents under root when they change on disk
func WithWatch(root string) Option {
	return func(o *sessionOptions) { o.watchRoot = root }
}

// WithWatchDebounce overrides how long file events are coalesced
func WithWatchDebounce(d time.Duration) Option {
	return func(o *sessionOptions) { o.watchDelay = d }
}

// Session is one client connection to one language server
type Session struct {
	id       string
	config   types.ClientConfig
	editor   editor.Editor
	log      *common.SafeLogger
	table    *pending.Table
	caps     *capabilities.Set
	docs     *documents.Tracker
	registry *dispatch.Registry
	sup      *process.Supervisor

	requestTimeout time.Duration
	sweepMu        sync.Mutex
	sweepStop      chan struct{}
	sweepDone      chan struct{}

	diagMu      sync.Mutex
	diagnostics map[string][]Diagnostic

	watchRoot  string
	watchDelay time.Duration
	watchMu    sync.Mutex
	watch      *watcher.FileWatcher
}

// NewSession creates a session for the server described by config. Nothing is
// started until Start.
func NewSession(config types.ClientConfig, ed editor.Editor, opts ...Option) *Session {
	o := sessionOptions{
		logger:          common.ClientLogger,
		shutdownTimeout: constants.ProcessShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	id := ulid.Make().String()
	log := o.logger.Named(id[len(id)-6:])
	s := &Session{
		id:             id,
		config:         config,
		editor:         ed,
		log:            log,
		table:          pending.NewTable(log),
		caps:           capabilities.NewSet(log),
		docs:           documents.NewTracker(log),
		requestTimeout: o.requestTimeout,
		diagnostics:    make(map[string][]Diagnostic),
		watchRoot:      o.watchRoot,
		watchDelay:     o.watchDelay,
	}
	s.registry = dispatch.NewRegistry(s.handlers())

	supOpts := []process.Option{
		process.WithLogger(log),
		process.WithTeardown(s.teardown),
		process.WithShutdownTimeout(o.shutdownTimeout),
	}
	if o.launcher != nil {
		supOpts = append(supOpts, process.WithLauncher(o.launcher))
	}
	if o.trace != nil {
		supOpts = append(supOpts, process.WithTap(o.trace.Recorder(id)))
	}
	s.sup = process.NewSupervisor(config, s.serve, supOpts...)
	return s
}

// ID returns the session's unique identifier
func (s *Session) ID() string {
	return s.id
}

// Capabilities returns the set recorded from the initialize result
func (s *Session) Capabilities() *capabilities.Set {
	return s.caps
}

// Pending returns the number of requests awaiting a response
func (s *Session) Pending() int {
	return s.table.Len()
}

// OpenDocuments lists the documents the server has been told about
func (s *Session) OpenDocuments() []string {
	return s.docs.Paths()
}

// Start launches the server process and its read loop. It is a no-op while the
// server is alive.
func (s *Session) Start() error {
	if err := s.sup.Start(); err != nil {
		return err
	}
	s.startSweeper()
	s.startWatcher()
	return nil
}

// Alive reports whether the server process is running
func (s *Session) Alive() bool {
	return s.sup.Alive()
}

// PID returns the server's process id, or 0
func (s *Session) PID() int {
	return s.sup.PID()
}

// Wait blocks until the current server's read loop and helpers finish
func (s *Session) Wait() error {
	return s.sup.Wait()
}

// Close shuts the server down gracefully and releases the session's resources
func (s *Session) Close(ctx context.Context) error {
	s.stopSweeper()
	s.stopWatcher()
	err := s.sup.Stop(ctx, s)
	s.log.Sync()
	return err
}

func (s *Session) serve(ctx context.Context, t *protocol.Transport) error {
	d := dispatch.New(t, s.table, s.registry, s.echo, s.log)
	return d.Run(ctx)
}

// teardown runs whenever the server process goes away
func (s *Session) teardown(cause error) {
	if n := s.table.Clear(cause); n > 0 {
		s.log.Warn("Dropped %d pending requests: %v", n, cause)
	}
	s.docs.Reset()
}

// effect runs fn on the editor's context, isolating the dispatcher from its panics
func (s *Session) effect(fn func()) {
	s.editor.AsyncCall(func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("Editor effect panicked: %v", r)
			}
		}()
		fn()
	})
}

// echo shows msg to the user from any goroutine
func (s *Session) echo(msg string) {
	s.effect(func() { s.editor.Echo(msg) })
}

// call sends a request whose result is handed to cont on the dispatcher
// goroutine. It returns nil, allocating no id, when the server is not running.
func (s *Session) call(method string, params interface{}, cont pending.Continuation) *pending.Call {
	if !s.sup.Alive() {
		s.log.Debug("Skipping %s: server not running", method)
		return nil
	}

	id := s.table.Allocate()
	call, err := s.table.Register(id, method, cont)
	if err != nil {
		s.log.Error("Failed to register %s: %v", method, err)
		return nil
	}
	msg, err := protocol.NewRequest(id, method, params)
	if err != nil {
		s.log.Error("Failed to build %s request: %v", method, err)
		s.table.Drop(id, err)
		return call
	}
	if err := s.sup.Send(msg); err != nil {
		if errors.IsNotAliveError(err) {
			s.log.Debug("Server exited before %s could be sent", method)
		} else {
			s.log.Error("Failed to send %s: %v", method, err)
		}
		s.table.Drop(id, err)
	}
	return call
}

// notify sends a notification; a no-op when the server is not running
func (s *Session) notify(method string, params interface{}) error {
	if !s.sup.Alive() {
		s.log.Debug("Skipping %s: server not running", method)
		return nil
	}
	msg, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	if err := s.sup.Send(msg); err != nil && !errors.IsNotAliveError(err) {
		return err
	}
	return nil
}

// SendShutdownRequest sends shutdown and waits for the server's reply
func (s *Session) SendShutdownRequest(ctx context.Context) error {
	call := s.call(types.MethodShutdown, nil, nil)
	if call == nil {
		return errors.NewProcessError(s.config.Command, errors.ProcessNotAlive, nil)
	}
	return call.Wait(ctx)
}

// SendExitNotification tells the server to exit
func (s *Session) SendExitNotification(ctx context.Context) error {
	return s.notify(types.MethodExit, nil)
}

func (s *Session) startSweeper() {
	if s.requestTimeout <= 0 {
		return
	}
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	if s.sweepStop != nil {
		return
	}

	interval := s.requestTimeout / 4
	if interval < constants.MinSweepInterval {
		interval = constants.MinSweepInterval
	}
	stop, done := make(chan struct{}), make(chan struct{})
	s.sweepStop, s.sweepDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.expire()
			case <-stop:
				return
			}
		}
	}()
}

func (s *Session) stopSweeper() {
	s.sweepMu.Lock()
	stop, done := s.sweepStop, s.sweepDone
	s.sweepStop, s.sweepDone = nil, nil
	s.sweepMu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

type cancelParams struct {
	ID int64 `json:"id"`
}

// expire evicts requests older than the request timeout and asks the server to
// cancel them
func (s *Session) expire() {
	for _, call := range s.table.Expire(s.requestTimeout) {
		s.log.Warn("Request %s (id=%d) timed out after %v", call.Method, call.ID, s.requestTimeout)
		if err := s.notify(types.MethodCancelRequest, cancelParams{ID: call.ID}); err != nil {
			s.log.Debug("Failed to cancel request id=%d: %v", call.ID, err)
		}
	}
}
