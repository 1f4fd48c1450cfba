package gitignore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"lspclient/src/internal/constants"
)

// Matcher answers ignore questions for paths under a root, consulting every
// .gitignore between the root and the path. Parsed files are cached.
type Matcher struct {
	root  string
	mu    sync.RWMutex
	cache map[string]*Rules
}

// NewMatcher creates a matcher for the tree at root
func NewMatcher(root string) *Matcher {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Matcher{root: root, cache: make(map[string]*Rules)}
}

// Root returns the directory the matcher was created for
func (m *Matcher) Root() string {
	return m.root
}

// Ignored reports whether path is excluded, either by a .gitignore or because
// one of its elements is a directory that is never of interest
func (m *Matcher) Ignored(path string, isDir bool) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(m.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	if rel == "." {
		return false
	}

	elems := strings.Split(rel, string(filepath.Separator))
	for _, e := range elems[:len(elems)-1] {
		if constants.SkipDirectories[e] {
			return true
		}
	}
	if isDir && constants.SkipDirectories[elems[len(elems)-1]] {
		return true
	}

	// deeper files override shallower ones
	dir := filepath.Dir(abs)
	for {
		if ignored, decided := m.rules(dir).Match(abs, isDir); decided {
			return ignored
		}
		if dir == m.root {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return false
}

// IgnoredPath stats path to decide whether it is a directory. Paths that no
// longer exist are treated as files.
func (m *Matcher) IgnoredPath(path string) bool {
	isDir := false
	if info, err := os.Stat(path); err == nil {
		isDir = info.IsDir()
	}
	return m.Ignored(path, isDir)
}

// Forget drops the cached rules of dir so a changed .gitignore is re-read
func (m *Matcher) Forget(dir string) {
	m.mu.Lock()
	delete(m.cache, dir)
	m.mu.Unlock()
}

func (m *Matcher) rules(dir string) *Rules {
	m.mu.RLock()
	rs, ok := m.cache[dir]
	m.mu.RUnlock()
	if ok {
		return rs
	}

	rs, err := ParseFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		rs = &Rules{dir: dir}
	}
	m.mu.Lock()
	m.cache[dir] = rs
	m.mu.Unlock()
	return rs
}
