// Package lsptest provides an in-process fake language server for tests. It
// speaks JSON-RPC through an independent implementation so the client's own
// framing and dispatch are exercised end to end.
package lsptest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"lspclient/src/internal/types"
	"lspclient/src/server/process"
)

// ErrNoReply makes a request handler leave the request unanswered
var ErrNoReply = errors.New("lsptest: no reply")

// Handler serves one method. Requests are answered with its result or error.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Message is a request or notification received from the client
type Message struct {
	Method string
	ID     string
	Params json.RawMessage
}

// IsRequest reports whether the client expects an answer
func (m Message) IsRequest() bool {
	return m.ID != ""
}

// Server is a scripted language server. Each Launch starts a fresh connection
// sharing the server's handlers and message log.
type Server struct {
	mu       sync.Mutex
	handlers map[string]Handler
	received []Message
	launches int
	current  *instance
	changed  chan struct{}
}

// New creates a server that answers initialize, shutdown and exit
func New() *Server {
	s := &Server{
		handlers: make(map[string]Handler),
		changed:  make(chan struct{}),
	}
	s.Handle(types.MethodInitialize, func(context.Context, json.RawMessage) (interface{}, error) {
		return DefaultInitializeResult(), nil
	})
	s.Handle(types.MethodShutdown, func(context.Context, json.RawMessage) (interface{}, error) {
		return nil, nil
	})
	s.Handle(types.MethodExit, func(context.Context, json.RawMessage) (interface{}, error) {
		s.Exit(nil)
		return nil, nil
	})
	return s
}

// DefaultInitializeResult advertises the features the client uses
func DefaultInitializeResult() *lsp.InitializeResult {
	return &lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync: &lsp.TextDocumentSyncOptionsOrKind{
				Options: &lsp.TextDocumentSyncOptions{
					OpenClose: true,
					Change:    lsp.TDSKFull,
				},
			},
			HoverProvider:          true,
			DefinitionProvider:     true,
			ReferencesProvider:     true,
			DocumentSymbolProvider: true,
			RenameProvider:         true,
		},
	}
}

// Handle sets the handler for method, replacing any previous one
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Respond makes method answer with a fixed result
func (s *Server) Respond(method string, result interface{}) {
	s.Handle(method, func(context.Context, json.RawMessage) (interface{}, error) {
		return result, nil
	})
}

// Launch implements process.Launcher
func (s *Server) Launch(config types.ClientConfig) (*process.Handle, error) {
	inst := newInstance(s)

	s.mu.Lock()
	s.launches++
	s.current = inst
	s.mu.Unlock()

	return process.NewHandle(config.Command, 40000+s.Launches(), inst.clientIn, inst.clientOut, inst.clientErr, inst.wait, inst.kill), nil
}

// Launches counts started connections
func (s *Server) Launches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launches
}

func (s *Server) instance() *instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Notify sends a notification to the client
func (s *Server) Notify(ctx context.Context, method string, params interface{}) error {
	inst := s.instance()
	if inst == nil {
		return fmt.Errorf("lsptest: server not launched")
	}
	return inst.conn.Notify(ctx, method, params)
}

// Call sends a request to the client and decodes its answer into result.
// It must not be called from inside a Handler.
func (s *Server) Call(ctx context.Context, method string, params, result interface{}) error {
	inst := s.instance()
	if inst == nil {
		return fmt.Errorf("lsptest: server not launched")
	}
	return inst.conn.Call(ctx, method, params, result)
}

// Stderr writes a line to the server's diagnostic stream
func (s *Server) Stderr(line string) error {
	inst := s.instance()
	if inst == nil {
		return fmt.Errorf("lsptest: server not launched")
	}
	_, err := io.WriteString(inst.serverErr, line+"\n")
	return err
}

// Exit ends the current process with the given exit status
func (s *Server) Exit(err error) {
	if inst := s.instance(); inst != nil {
		inst.exit(err)
	}
}

// Received returns every message received so far, across launches
func (s *Server) Received() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.received...)
}

// Methods returns the method names received so far in arrival order
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	methods := make([]string, len(s.received))
	for i, m := range s.received {
		methods[i] = m.Method
	}
	return methods
}

// Count returns how many messages for method have arrived
func (s *Server) Count(method string) int {
	n := 0
	for _, m := range s.Received() {
		if m.Method == method {
			n++
		}
	}
	return n
}

// WaitFor blocks until the n-th (one-based) message for method arrives and
// returns it, failing the test after a few seconds.
func (s *Server) WaitFor(t testing.TB, method string, n int) Message {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		s.mu.Lock()
		seen := 0
		for _, m := range s.received {
			if m.Method == method {
				seen++
				if seen == n {
					s.mu.Unlock()
					return m
				}
			}
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-deadline:
			t.Fatalf("timed out waiting for %s #%d; received %v", method, n, s.Methods())
			return Message{}
		}
	}
}

func (s *Server) record(m Message) Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, m)
	close(s.changed)
	s.changed = make(chan struct{})
	return s.handlers[m.Method]
}

// serve runs on the connection's read goroutine, so handlers see messages in
// arrival order
func (s *Server) serve(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	m := Message{Method: req.Method}
	if req.Params != nil {
		m.Params = append(json.RawMessage(nil), *req.Params...)
	}
	if !req.Notif {
		m.ID = req.ID.String()
	}
	h := s.record(m)

	if h == nil {
		if !req.Notif {
			conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
				Code:    jsonrpc2.CodeMethodNotFound,
				Message: "method not found: " + req.Method,
			})
		}
		return
	}

	result, err := h(ctx, m.Params)
	if req.Notif || errors.Is(err, ErrNoReply) {
		return
	}
	if err != nil {
		var rpcErr *jsonrpc2.Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
		}
		conn.ReplyWithError(ctx, req.ID, rpcErr)
		return
	}
	conn.Reply(ctx, req.ID, result)
}

type handlerFunc func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request)

func (f handlerFunc) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	f(ctx, conn, req)
}

// instance is one launched connection
type instance struct {
	clientIn  *io.PipeWriter
	clientOut *io.PipeReader
	clientErr *io.PipeReader
	serverIn  *io.PipeReader
	serverOut *io.PipeWriter
	serverErr *io.PipeWriter

	conn     *jsonrpc2.Conn
	cancel   context.CancelFunc
	exitOnce sync.Once
	exited   chan struct{}
	exitErr  error
}

func newInstance(s *Server) *instance {
	inst := &instance{exited: make(chan struct{})}
	inst.serverIn, inst.clientIn = io.Pipe()
	inst.clientOut, inst.serverOut = io.Pipe()
	inst.clientErr, inst.serverErr = io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	inst.cancel = cancel
	stream := jsonrpc2.NewBufferedStream(pipes{inst.serverIn, inst.serverOut}, jsonrpc2.VSCodeObjectCodec{})
	inst.conn = jsonrpc2.NewConn(ctx, stream, handlerFunc(s.serve))

	go func() {
		<-inst.conn.DisconnectNotify()
		inst.exit(nil)
	}()
	return inst
}

func (i *instance) exit(err error) {
	i.exitOnce.Do(func() {
		i.exitErr = err
		i.serverOut.Close()
		i.serverErr.Close()
		i.serverIn.Close()
		i.cancel()
		close(i.exited)
	})
}

func (i *instance) wait() error {
	<-i.exited
	return i.exitErr
}

func (i *instance) kill() error {
	i.exit(errors.New("signal: killed"))
	return nil
}

type pipes struct {
	in  *io.PipeReader
	out *io.PipeWriter
}

func (p pipes) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p pipes) Write(b []byte) (int, error) { return p.out.Write(b) }

func (p pipes) Close() error {
	p.in.Close()
	return p.out.Close()
}
