// Package gitignore decides which workspace paths a user has excluded with
// .gitignore files.
package gitignore

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type rule struct {
	glob     string
	negate   bool
	dirOnly  bool
	anchored bool
}

// Rules are the patterns of one .gitignore file, relative to its directory
type Rules struct {
	dir   string
	rules []rule
}

// Parse reads patterns from r for a .gitignore located in dir
func Parse(r io.Reader, dir string) (*Rules, error) {
	rs := &Rules{dir: dir}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ru, ok := parseLine(scanner.Text()); ok {
			rs.rules = append(rs.rules, ru)
		}
	}
	return rs, scanner.Err()
}

// ParseFile reads a .gitignore file. A missing file yields empty rules.
func ParseFile(path string) (*Rules, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &Rules{dir: filepath.Dir(path)}, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f, filepath.Dir(path))
}

func parseLine(line string) (rule, bool) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	var ru rule
	if strings.HasPrefix(line, "!") {
		ru.negate = true
		line = line[1:]
	} else if strings.HasPrefix(line, `\!`) || strings.HasPrefix(line, `\#`) {
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		ru.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		ru.anchored = true
		line = line[1:]
	} else if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
		// a slash anywhere but the end anchors the pattern to its directory
		ru.anchored = true
	}
	if line == "" {
		return rule{}, false
	}
	ru.glob = line
	return ru, true
}

// Len returns the number of patterns
func (rs *Rules) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Match reports whether path is ignored by these rules alone. The second result
// is false when no pattern spoke about the path.
func (rs *Rules) Match(path string, isDir bool) (ignored, decided bool) {
	if rs.Len() == 0 {
		return false, false
	}
	rel, err := filepath.Rel(rs.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false, false
	}
	rel = filepath.ToSlash(rel)

	for _, ru := range rs.rules {
		if ru.dirOnly && !isDir {
			continue
		}
		if ru.matches(rel) {
			ignored, decided = !ru.negate, true
		}
	}
	return ignored, decided
}

func (ru rule) matches(rel string) bool {
	if strings.Contains(ru.glob, "**") {
		return matchDoubleStar(ru.glob, rel)
	}
	if ru.anchored {
		return globMatch(ru.glob, rel)
	}
	// unanchored patterns match any trailing run of path elements
	parts := strings.Split(rel, "/")
	for i := range parts {
		if globMatch(ru.glob, strings.Join(parts[i:], "/")) {
			return true
		}
	}
	return false
}

func matchDoubleStar(glob, rel string) bool {
	if glob == "**" {
		return true
	}
	if rest, ok := strings.CutPrefix(glob, "**/"); ok {
		parts := strings.Split(rel, "/")
		for i := range parts {
			if matchDoubleStar(rest, strings.Join(parts[i:], "/")) {
				return true
			}
		}
		return false
	}
	if prefix, ok := strings.CutSuffix(glob, "/**"); ok {
		return strings.HasPrefix(rel, prefix+"/")
	}
	if i := strings.Index(glob, "/**/"); i >= 0 {
		prefix, rest := glob[:i], glob[i+len("/**/"):]
		head, tail, found := strings.Cut(rel, "/")
		if !found || !globMatch(prefix, head) {
			return false
		}
		return matchDoubleStar("**/"+rest, tail)
	}
	return globMatch(glob, rel)
}

func globMatch(glob, name string) bool {
	ok, _ := filepath.Match(glob, name)
	return ok
}
