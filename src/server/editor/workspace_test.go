package editor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestOpenAndCursor(t *testing.T) {
	path := writeFile(t, "main.go", "package main\n\nfunc main() {}\n")
	w := NewWorkspace(nil)

	assert.Equal(t, "", w.CurrentPath())
	require.NoError(t, w.Open(path))
	assert.Equal(t, path, w.CurrentPath())
	assert.Equal(t, Position{Line: 1, Column: 1}, w.Cursor())
	assert.Equal(t, "go", w.FileType(path))

	w.SetCursor(Position{Line: 3, Column: 6})
	assert.Equal(t, Position{Line: 3, Column: 6}, w.Cursor())

	w.SetCursor(Position{Line: 99, Column: 99})
	assert.Equal(t, Position{Line: 4, Column: 1}, w.Cursor(), "clamped to the trailing empty line")

	assert.Error(t, w.Open(filepath.Join(t.TempDir(), "missing.go")))
}

func TestReplace(t *testing.T) {
	path := writeFile(t, "a.go", "var foo = 1\nfmt.Println(foo)\n")
	w := NewWorkspace(nil)

	require.NoError(t, w.Replace(path, Position{1, 5}, Position{1, 8}, "bar"))
	require.NoError(t, w.Replace(path, Position{2, 13}, Position{2, 16}, "bar"))
	text, err := w.Text(path)
	require.NoError(t, err)
	assert.Equal(t, "var bar = 1\nfmt.Println(bar)\n", text)

	// multi-line replacement
	require.NoError(t, w.Replace(path, Position{1, 4}, Position{2, 12}, " x\ny("))
	text, _ = w.Text(path)
	assert.Equal(t, "var x\ny((bar)\n", text)

	assert.Error(t, w.Replace(path, Position{10, 1}, Position{10, 2}, "z"))
	assert.Equal(t, []string{path}, w.Modified())
}

func TestReplaceCountsCharactersNotBytes(t *testing.T) {
	path := writeFile(t, "u.go", "s := \"héllo\"; x := 1\n")
	w := NewWorkspace(nil)
	require.NoError(t, w.Replace(path, Position{1, 15}, Position{1, 16}, "y"))
	line, err := w.Line(path, 1)
	require.NoError(t, err)
	assert.Equal(t, "s := \"héllo\"; y := 1", line)
}

func TestSave(t *testing.T) {
	path := writeFile(t, "b.go", "one\ntwo")
	w := NewWorkspace(nil)
	require.NoError(t, w.Replace(path, Position{2, 1}, Position{2, 4}, "three"))
	require.NoError(t, w.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\nthree", string(data))
	assert.Empty(t, w.Modified())
}

func TestEchoAndAsyncCall(t *testing.T) {
	out := &bytes.Buffer{}
	w := NewWorkspace(out)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		w.AsyncCall(func() {
			order = append(order, i)
			w.Echo("effect")
		})
	}
	syncCtx, syncCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer syncCancel()
	require.NoError(t, w.Sync(syncCtx))

	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, []string{"effect", "effect", "effect"}, w.Messages())
	assert.Equal(t, "effect\neffect\neffect\n", out.String())
}

func TestAsyncCallDoesNotBlockWhileRunIsBusy(t *testing.T) {
	w := NewWorkspace(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	release := make(chan struct{})
	w.AsyncCall(func() { <-release })

	var order []int
	queued := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			i := i
			w.AsyncCall(func() { order = append(order, i) })
		}
		close(queued)
	}()
	select {
	case <-queued:
	case <-time.After(2 * time.Second):
		t.Fatal("AsyncCall blocked while the editor was busy")
	}
	assert.GreaterOrEqual(t, w.Pending(), 500)

	close(release)
	syncCtx, syncCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer syncCancel()
	require.NoError(t, w.Sync(syncCtx))
	require.Len(t, order, 500)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, w.Pending())
}

func TestReloadKeepsUnsavedChanges(t *testing.T) {
	path := writeFile(t, "c.go", "old")
	w := NewWorkspace(nil)
	_, err := w.Text(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("new"), 0644))
	assert.True(t, w.Reload(path))
	text, _ := w.Text(path)
	assert.Equal(t, "new", text)

	require.NoError(t, w.Replace(path, Position{1, 1}, Position{1, 1}, "x"))
	require.NoError(t, os.WriteFile(path, []byte("disk"), 0644))
	assert.False(t, w.Reload(path))
	text, _ = w.Text(path)
	assert.Equal(t, "xnew", text)
}
