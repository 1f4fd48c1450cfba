package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"lspclient/src/internal/common"
	"lspclient/src/internal/errors"
	"lspclient/src/server/pending"
	"lspclient/src/server/protocol"
)

type fakeConn struct {
	mu      sync.Mutex
	inbound []string
	readErr error
	written []*protocol.Message
}

func (c *fakeConn) Read() (*protocol.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbound) == 0 {
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, io.EOF
	}
	payload := c.inbound[0]
	c.inbound = c.inbound[1:]
	return protocol.Decode([]byte(payload))
}

func (c *fakeConn) Write(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, msg)
	return nil
}

type harness struct {
	conn     *fakeConn
	table    *pending.Table
	logs     *observer.ObservedLogs
	notified []string
	d        *Dispatcher
}

func newHarness(handlers map[string]Handler, inbound ...string) *harness {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := common.NewSafeLoggerWithCore("dispatch", core)
	h := &harness{
		conn:  &fakeConn{inbound: inbound},
		table: pending.NewTable(logger),
		logs:  logs,
	}
	h.d = New(h.conn, h.table, NewRegistry(handlers), func(s string) { h.notified = append(h.notified, s) }, logger)
	return h
}

func TestHandlerName(t *testing.T) {
	assert.Equal(t, "textDocument_publishDiagnostics", HandlerName("textDocument/publishDiagnostics"))
	assert.Equal(t, "$_progress", HandlerName("$/progress"))
	assert.Equal(t, "initialized", HandlerName("initialized"))
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(map[string]Handler{
		"window/showMessage": func(context.Context, json.RawMessage) (interface{}, error) { return nil, nil },
	})
	_, ok := r.Lookup("window/showMessage")
	assert.True(t, ok)
	_, ok = r.Lookup("window/logMessage")
	assert.False(t, ok)
	assert.Equal(t, []string{"window_showMessage"}, r.Names())

	var nilRegistry *Registry
	_, ok = nilRegistry.Lookup("anything")
	assert.False(t, ok)
}

func TestRunResolvesResponses(t *testing.T) {
	h := newHarness(nil,
		`{"jsonrpc":"2.0","id":1,"result":{"contents":"x"}}`,
		`{"jsonrpc":"2.0","id":2,"result":null}`,
	)
	var got []string
	for i := 0; i < 2; i++ {
		id := h.table.Allocate()
		_, err := h.table.Register(id, "textDocument/hover", func(result json.RawMessage) error {
			got = append(got, string(result))
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, h.d.Run(context.Background()))
	assert.Equal(t, []string{`{"contents":"x"}`, `null`}, got)
	assert.Equal(t, 0, h.table.Len())
}

func TestRunErrorResponseFailsWithoutInvoking(t *testing.T) {
	h := newHarness(nil, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid position"}}`)
	fired := false
	call, _ := h.table.Register(h.table.Allocate(), "textDocument/definition", func(json.RawMessage) error {
		fired = true
		return nil
	})

	require.NoError(t, h.d.Run(context.Background()))
	assert.False(t, fired)
	assert.True(t, errors.IsProtocolError(call.Err()))
	assert.Equal(t, []string{"lspclient: invalid position"}, h.notified)
	assert.Equal(t, 1, h.logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRunErrorWithoutIDStillSurfaced(t *testing.T) {
	h := newHarness(nil, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`)
	require.NoError(t, h.d.Run(context.Background()))
	assert.Equal(t, []string{"lspclient: parse error"}, h.notified)
}

func TestRunContinuesAfterHandlerFailure(t *testing.T) {
	var diagnostics int
	h := newHarness(map[string]Handler{
		"window/showMessage": func(context.Context, json.RawMessage) (interface{}, error) {
			panic("editor gone")
		},
		"textDocument/publishDiagnostics": func(context.Context, json.RawMessage) (interface{}, error) {
			diagnostics++
			return nil, nil
		},
	},
		`{"jsonrpc":"2.0","method":"window/showMessage","params":{"type":1,"message":"x"}}`,
		`{"jsonrpc":"2.0","id":1,"result":1}`,
		`{"jsonrpc":"2.0","method":"textDocument/publishDiagnostics","params":{"uri":"file:///a","diagnostics":[]}}`,
	)
	_, _ = h.table.Register(h.table.Allocate(), "textDocument/hover", func(json.RawMessage) error {
		return fmt.Errorf("unexpected hover shape")
	})

	require.NoError(t, h.d.Run(context.Background()))
	assert.Equal(t, 1, diagnostics)
	errs := h.logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Message, "panicked: editor gone")
	assert.Contains(t, errs[1].Message, "unexpected hover shape")
}

func TestRunUnknownNotificationWarns(t *testing.T) {
	h := newHarness(nil, `{"jsonrpc":"2.0","method":"custom/thing","params":{}}`)
	require.NoError(t, h.d.Run(context.Background()))
	warnings := h.logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "No handler implemented for custom/thing", warnings[0].Message)
	assert.Empty(t, h.conn.written)
}

func TestRunRepliesToServerRequests(t *testing.T) {
	h := newHarness(map[string]Handler{
		"workspace/configuration": func(context.Context, json.RawMessage) (interface{}, error) {
			return []interface{}{map[string]interface{}{}}, nil
		},
		"client/registerCapability": func(context.Context, json.RawMessage) (interface{}, error) {
			return nil, fmt.Errorf("not supported")
		},
	},
		`{"jsonrpc":"2.0","id":10,"method":"workspace/configuration","params":{"items":[{}]}}`,
		`{"jsonrpc":"2.0","id":11,"method":"client/registerCapability","params":{}}`,
		`{"jsonrpc":"2.0","id":"x12","method":"workspace/applyEdit","params":{}}`,
	)
	require.NoError(t, h.d.Run(context.Background()))
	require.Len(t, h.conn.written, 3)

	assert.Equal(t, "10", string(h.conn.written[0].ID))
	assert.JSONEq(t, `[{}]`, string(h.conn.written[0].Result))

	require.NotNil(t, h.conn.written[1].Error)
	assert.Equal(t, errors.InternalError, h.conn.written[1].Error.Code)

	require.NotNil(t, h.conn.written[2].Error)
	assert.Equal(t, `"x12"`, string(h.conn.written[2].ID))
	assert.Equal(t, errors.MethodNotFound, h.conn.written[2].Error.Code)
}

func TestRunSkipsDecodeErrorsAndStopsOnTransportError(t *testing.T) {
	h := newHarness(nil, `{not json`, `{"jsonrpc":"2.0","id":1,"result":true}`)
	h.conn.readErr = errors.NewTransportError("read body", io.ErrUnexpectedEOF)
	resolved := false
	_, _ = h.table.Register(h.table.Allocate(), "shutdown", func(json.RawMessage) error {
		resolved = true
		return nil
	})

	var err error
	assert.NotPanics(t, func() { err = h.d.Run(context.Background()) })
	assert.True(t, errors.IsTransportError(err))
	assert.True(t, resolved)
}

func TestRunUnknownResponseID(t *testing.T) {
	h := newHarness(nil, `{"jsonrpc":"2.0","id":99,"result":{}}`, `{"jsonrpc":"2.0","id":"abc","result":{}}`)
	require.NoError(t, h.d.Run(context.Background()))
	warnings := h.logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 2)
	assert.True(t, strings.Contains(warnings[0].Message, "id=99"))
}

func TestTruncatedFrameEndsLoop(t *testing.T) {
	stream := "Content-Length: 500\r\n\r\n" + `{"jsonrpc":"2.0","id":1,"result":`
	tr := protocol.NewTransport(strings.NewReader(stream), io.Discard)
	core, _ := observer.New(zapcore.DebugLevel)
	logger := common.NewSafeLoggerWithCore("dispatch", core)
	d := New(tr, pending.NewTable(logger), NewRegistry(nil), nil, logger)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	err := <-done
	assert.True(t, errors.IsTransportError(err))
}
