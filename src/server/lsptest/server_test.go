package lsptest

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lspclient/src/internal/types"
	"lspclient/src/server/protocol"
)

func TestServerAnswersOverFramedPipes(t *testing.T) {
	s := New()
	s.Respond("textDocument/hover", map[string]string{"contents": "doc"})

	h, err := s.Launch(types.ClientConfig{Command: "fake"})
	require.NoError(t, err)
	tr := protocol.NewTransport(h.Stdout, h.Stdin)

	req, err := protocol.NewRequest(1, "textDocument/hover", map[string]int{"line": 0})
	require.NoError(t, err)
	require.NoError(t, tr.Write(req))

	resp, err := tr.Read()
	require.NoError(t, err)
	assert.Equal(t, protocol.KindResponse, resp.Kind())
	assert.JSONEq(t, `{"contents":"doc"}`, string(resp.Result))

	got := s.WaitFor(t, "textDocument/hover", 1)
	assert.True(t, got.IsRequest())
	assert.JSONEq(t, `{"line":0}`, string(got.Params))
}

func TestServerUnknownMethod(t *testing.T) {
	s := New()
	h, err := s.Launch(types.ClientConfig{Command: "fake"})
	require.NoError(t, err)
	tr := protocol.NewTransport(h.Stdout, h.Stdin)

	req, _ := protocol.NewRequest(2, "textDocument/unknown", nil)
	require.NoError(t, tr.Write(req))

	resp, err := tr.Read()
	require.NoError(t, err)
	require.Equal(t, protocol.KindErrorResponse, resp.Kind())
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestServerNotifyAndExit(t *testing.T) {
	s := New()
	h, err := s.Launch(types.ClientConfig{Command: "fake"})
	require.NoError(t, err)
	tr := protocol.NewTransport(h.Stdout, h.Stdin)

	go s.Notify(context.Background(), "window/showMessage", map[string]interface{}{"type": 3, "message": "hi"})
	msg, err := tr.Read()
	require.NoError(t, err)
	assert.Equal(t, protocol.KindNotification, msg.Kind())
	var params struct{ Message string }
	require.NoError(t, json.Unmarshal(msg.Params, &params))
	assert.Equal(t, "hi", params.Message)

	exit, _ := protocol.NewNotification(types.MethodExit, nil)
	require.NoError(t, tr.Write(exit))
	_, err = tr.Read()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, []string{types.MethodExit}, s.Methods())
}
