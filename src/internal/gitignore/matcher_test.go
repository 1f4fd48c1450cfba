package gitignore

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestMatcherNestedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\n*.tmp\n")
	writeFile(t, filepath.Join(root, "src", ".gitignore"), "!debug.log\nout/\n")

	m := NewMatcher(root)
	tests := []struct {
		path    string
		isDir   bool
		ignored bool
	}{
		{"app.log", false, true},
		{"src/app.log", false, true},
		{"src/debug.log", false, false},
		{"debug.log", false, true},
		{"src/x.tmp", false, true},
		{"src/out", true, true},
		{"out", true, false},
		{"src/main.go", false, false},
		{"node_modules", true, true},
		{"node_modules/pkg/index.js", false, true},
	}
	for _, tt := range tests {
		got := m.Ignored(filepath.Join(root, filepath.FromSlash(tt.path)), tt.isDir)
		if got != tt.ignored {
			t.Errorf("Ignored(%s) = %v, want %v", tt.path, got, tt.ignored)
		}
	}
}

func TestMatcherForget(t *testing.T) {
	root := t.TempDir()
	m := NewMatcher(root)
	target := filepath.Join(root, "a.gen")
	if m.Ignored(target, false) {
		t.Fatalf("nothing is ignored yet")
	}

	writeFile(t, filepath.Join(root, ".gitignore"), "*.gen\n")
	if m.Ignored(target, false) {
		t.Fatalf("cached rules should still be used")
	}
	m.Forget(root)
	if !m.Ignored(target, false) {
		t.Errorf("expected re-read rules to ignore %s", target)
	}
}

func TestWalkSkipsIgnored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "gen/\n")
	writeFile(t, filepath.Join(root, "main.go"), "package main")
	writeFile(t, filepath.Join(root, "gen", "x.go"), "package gen")
	writeFile(t, filepath.Join(root, "vendor", "y.go"), "package y")
	writeFile(t, filepath.Join(root, "a", "b", "c", "d", "deep.go"), "package d")
	writeFile(t, filepath.Join(root, "a", "b", "ok.go"), "package b")

	var files []string
	err := Walk(root, 3, func(path string, d os.DirEntry, err error) error {
		if !d.IsDir() && filepath.Ext(path) == ".go" {
			rel, _ := filepath.Rel(root, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(files)
	want := []string{"a/b/ok.go", "main.go"}
	if len(files) != len(want) || files[0] != want[0] || files[1] != want[1] {
		t.Errorf("Walk found %v, want %v", files, want)
	}
}
