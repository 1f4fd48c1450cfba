package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lspclient/src/config"
	"lspclient/src/internal/types"
	"lspclient/src/server/editor"
	"lspclient/src/server/lsptest"
	"lspclient/src/server/protocol"
	"lspclient/src/server/trace"
)

// lockedBuffer is written by the workspace goroutine and the test at once
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

const mainGo = "package main\n\nfunc main() {}\n"

func withFakeServer(t *testing.T) (*lsptest.Server, string) {
	t.Helper()
	srv := lsptest.New()
	srv.Respond(types.MethodTextDocumentHover, map[string]interface{}{
		"contents": map[string]interface{}{"kind": "markdown", "value": "func main()"},
	})
	launcher = srv
	t.Cleanup(func() { launcher = nil })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte(mainGo), 0644))
	return srv, dir
}

func testConfig(dir string) *config.Config {
	cfg := config.GetDefaultConfig()
	sc := cfg.Servers["go"]
	sc.WorkingDir = dir
	cfg.Servers["go"] = sc
	return cfg
}

func TestReplSession(t *testing.T) {
	srv, dir := withFakeServer(t)
	out := &lockedBuffer{}

	c, err := clientFor(testConfig(dir), "", filepath.Join(dir, "main.go"), out)
	require.NoError(t, err)
	defer c.Close()

	script := strings.Join([]string{
		"open " + filepath.Join(dir, "main.go"),
		"# comment",
		"hover 3 6",
		"caps",
		"pending",
		"goto 0 0",
		"bogus",
		"quit",
		"hover",
	}, "\n")
	r := &repl{c: c, out: out}
	require.NoError(t, r.run(strings.NewReader(script)))

	text := out.String()
	assert.Contains(t, text, "func main()")
	assert.Contains(t, text, "hoverProvider")
	assert.Contains(t, text, "0 pending")
	assert.Contains(t, text, "usage: goto <line> <col>")
	assert.Contains(t, text, `unknown command "bogus"`)
	assert.Equal(t, 1, srv.Count(types.MethodTextDocumentHover), "commands after quit must not run")
	assert.Equal(t, 1, srv.Count(types.MethodTextDocumentDidOpen))

	hover := srv.WaitFor(t, types.MethodTextDocumentHover, 1)
	assert.Contains(t, string(hover.Params), `"line":2`)
	assert.Contains(t, string(hover.Params), `"character":5`)
}

func TestReplNeedsOpenFile(t *testing.T) {
	_, dir := withFakeServer(t)
	out := &lockedBuffer{}

	c, err := startClient(testConfig(dir), "go", "", out)
	require.NoError(t, err)
	defer c.Close()

	r := &repl{c: c, out: out}
	require.NoError(t, r.run(strings.NewReader("hover\n")))
	assert.Contains(t, out.String(), "no file open")
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		args    []string
		want    editor.Position
		wantErr bool
	}{
		{nil, editor.Position{}, false},
		{[]string{"3", "7"}, editor.Position{Line: 3, Column: 7}, false},
		{[]string{"3"}, editor.Position{}, true},
		{[]string{"x", "1"}, editor.Position{}, true},
		{[]string{"1", "0"}, editor.Position{}, true},
	}
	for _, tt := range tests {
		got, err := parsePosition(tt.args)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.args)
			continue
		}
		require.NoError(t, err, "%v", tt.args)
		assert.Equal(t, tt.want, got)
	}
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	out := &lockedBuffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestHoverCommandRecordsTrace(t *testing.T) {
	srv, dir := withFakeServer(t)
	cfg := testConfig(dir)
	cfg.TraceDB = filepath.Join(dir, "trace.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.SaveConfig(cfg, cfgPath))

	out := runCLI(t, "hover", "-c", cfgPath, filepath.Join(dir, "main.go"), "3", "6")
	assert.Contains(t, out, "func main()")
	assert.Equal(t, 1, srv.Count(types.MethodShutdown))

	list := runCLI(t, "trace", "list", "-c", cfgPath)
	id := regexp.MustCompile(`^(\S+)\s+\d+ messages`).FindStringSubmatch(list)
	require.Len(t, id, 2, list)

	dump := runCLI(t, "trace", "dump", "-c", cfgPath, id[1])
	assert.Contains(t, dump, `-> {"jsonrpc":"2.0","id":1,"method":"initialize"`)
	assert.Contains(t, dump, "<- ")
	assert.Contains(t, dump, "textDocument/hover")
}

func TestPrintTraceEntryTruncates(t *testing.T) {
	var buf bytes.Buffer
	long := `{"value":"` + strings.Repeat("a", 300) + `"}`
	e := trace.Entry{Seq: 7, Direction: protocol.Inbound, Payload: []byte(long)}

	printTraceEntry(&buf, e, false)
	assert.Contains(t, buf.String(), "     7")
	assert.Contains(t, buf.String(), "<- ")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(buf.String()), "..."))

	buf.Reset()
	printTraceEntry(&buf, e, true)
	assert.Contains(t, buf.String(), long)
}

func TestVersionCommand(t *testing.T) {
	out := runCLI(t, "version")
	assert.True(t, strings.HasPrefix(out, "lspclient "))
}
