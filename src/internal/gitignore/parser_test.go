package gitignore

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSkipsCommentsAndBlanks(t *testing.T) {
	rs, err := Parse(strings.NewReader("# comment\n\n*.log\n\\#literal\n!keep.log\n/\n"), "/repo")
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != 3 {
		t.Fatalf("expected 3 patterns, got %d", rs.Len())
	}
}

func TestRulesMatch(t *testing.T) {
	root := filepath.FromSlash("/repo")
	rs, err := Parse(strings.NewReader(strings.Join([]string{
		"*.log",
		"!keep.log",
		"build/",
		"/only-root.txt",
		"docs/*.md",
		"**/generated",
		"cache/**",
		"a/**/z.go",
	}, "\n")), root)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path    string
		isDir   bool
		ignored bool
		decided bool
	}{
		{"app.log", false, true, true},
		{"sub/app.log", false, true, true},
		{"keep.log", false, false, true},
		{"build", true, true, true},
		{"build", false, false, false},
		{"sub/build", true, true, true},
		{"only-root.txt", false, true, true},
		{"sub/only-root.txt", false, false, false},
		{"docs/readme.md", false, true, true},
		{"sub/docs/readme.md", false, false, false},
		{"x/y/generated", true, true, true},
		{"cache/a/b", false, true, true},
		{"a/b/c/z.go", false, true, true},
		{"a/z.go", false, true, true},
		{"main.go", false, false, false},
	}
	for _, tt := range tests {
		ignored, decided := rs.Match(filepath.Join(root, filepath.FromSlash(tt.path)), tt.isDir)
		if ignored != tt.ignored || decided != tt.decided {
			t.Errorf("Match(%s, dir=%v) = %v,%v want %v,%v", tt.path, tt.isDir, ignored, decided, tt.ignored, tt.decided)
		}
	}
}

func TestRulesOutsideDirectory(t *testing.T) {
	rs, _ := Parse(strings.NewReader("*\n"), filepath.FromSlash("/repo/sub"))
	if ignored, decided := rs.Match(filepath.FromSlash("/repo/other.go"), false); ignored || decided {
		t.Errorf("rules must not apply outside their directory")
	}
}

func TestParseFileMissing(t *testing.T) {
	rs, err := ParseFile(filepath.Join(t.TempDir(), ".gitignore"))
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if rs.Len() != 0 {
		t.Errorf("expected no patterns")
	}
}
