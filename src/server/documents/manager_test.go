package documents

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"file:///src/main.go", "go"},
		{"/src/app.py", "python"},
		{"component.tsx", "typescript"},
		{"README", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.in), tt.in)
	}
}

func TestURIConversion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir with space", "a.go")
	docURI := PathToURI(path)
	assert.Contains(t, string(docURI), "file://")
	assert.Equal(t, path, URIToPath(string(docURI)))
	assert.Equal(t, "untitled:Untitled-1", URIToPath("untitled:Untitled-1"))
}

func TestOpenChangeClose(t *testing.T) {
	tr := NewTracker(nil)
	path := filepath.Join(t.TempDir(), "main.go")

	open, ok := tr.Open(path, "", "package main")
	require.True(t, ok)
	assert.Equal(t, "go", string(open.TextDocument.LanguageID))
	assert.EqualValues(t, 1, open.TextDocument.Version)
	assert.Equal(t, "package main", open.TextDocument.Text)

	_, ok = tr.Open(path, "go", "package main")
	assert.False(t, ok, "second open is suppressed")

	change, err := tr.Change(path, "package main\n")
	require.NoError(t, err)
	assert.EqualValues(t, 2, change.TextDocument.Version)
	change, err = tr.Change(path, "package main\n\n")
	require.NoError(t, err)
	assert.EqualValues(t, 3, change.TextDocument.Version)

	data, err := json.Marshal(change)
	require.NoError(t, err)
	assert.JSONEq(t, `{"textDocument":{"uri":"`+string(PathToURI(path))+`","version":3},"contentChanges":[{"text":"package main\n\n"}]}`, string(data))

	save, err := tr.Save(path, "x")
	require.NoError(t, err)
	assert.Equal(t, PathToURI(path), save.TextDocument.URI)

	assert.Equal(t, []string{path}, tr.Paths())
	_, ok = tr.Close(path)
	assert.True(t, ok)
	_, ok = tr.Close(path)
	assert.False(t, ok)

	_, err = tr.Change(path, "")
	assert.Error(t, err)
	_, err = tr.Save(path, "")
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	tr := NewTracker(nil)
	path := filepath.Join(t.TempDir(), "a.py")
	tr.Open(path, "python", "")
	require.True(t, tr.IsOpen(path))
	doc, ok := tr.Get(path)
	require.True(t, ok)
	assert.Equal(t, "python", doc.LanguageID)

	tr.Reset()
	assert.False(t, tr.IsOpen(path))
	assert.Empty(t, tr.Paths())
}
