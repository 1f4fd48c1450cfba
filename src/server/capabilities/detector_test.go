package capabilities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"lspclient/src/internal/common"
	"lspclient/src/internal/types"
)

const goplsInit = `{"capabilities":{"hoverProvider":true,"definitionProvider":true,"referencesProvider":false,` +
	`"renameProvider":{"prepareProvider":true},"textDocumentSync":2},"serverInfo":{"name":"gopls"}}`

func TestParseAndSupports_Standard(t *testing.T) {
	values, err := ParseInitializeResult(json.RawMessage(goplsInit), "gopls")
	require.NoError(t, err)

	set := NewSet(nil)
	require.True(t, set.Store(values))

	assert.True(t, set.Supports(types.MethodTextDocumentHover))
	assert.True(t, set.Supports(types.MethodTextDocumentRename))
	assert.False(t, set.Supports(types.MethodTextDocumentReferences))
	assert.False(t, set.Supports(types.MethodTextDocumentDocumentSymbol))
	assert.True(t, set.Supports(types.MethodShutdown))
	assert.Equal(t, []string{"definitionProvider", "hoverProvider", "referencesProvider", "renameProvider", "textDocumentSync"}, set.Names())

	raw, ok := set.Get("textDocumentSync")
	require.True(t, ok)
	assert.Equal(t, "2", string(raw))
}

func TestParseJDTLSOverrides(t *testing.T) {
	values, err := ParseInitializeResult(json.RawMessage(`{"capabilities":{"hoverProvider":false}}`), "/opt/jdtls/bin/jdtls")
	require.NoError(t, err)
	set := NewSet(nil)
	set.Store(values)

	assert.False(t, set.Supports(types.MethodTextDocumentHover), "explicit values are kept")
	assert.True(t, set.Supports(types.MethodTextDocumentDefinition))
	assert.True(t, set.Supports(types.MethodTextDocumentDocumentSymbol))
}

func TestParseRejectsMissingCapabilities(t *testing.T) {
	_, err := ParseInitializeResult(json.RawMessage(`{"serverInfo":{}}`), "gopls")
	assert.Error(t, err)
	_, err = ParseInitializeResult(json.RawMessage(`null`), "gopls")
	assert.Error(t, err)
}

func TestStoreIsWriteOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	set := NewSet(common.NewSafeLoggerWithCore("Client", core))

	assert.True(t, set.Supports(types.MethodTextDocumentHover), "unknown before initialize")
	require.True(t, set.Store(map[string]json.RawMessage{"hoverProvider": json.RawMessage("true")}))
	assert.False(t, set.Store(map[string]json.RawMessage{"hoverProvider": json.RawMessage("false")}))

	assert.True(t, set.Has("hoverProvider"))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}
