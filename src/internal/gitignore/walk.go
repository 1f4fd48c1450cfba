package gitignore

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// Walk visits the files and directories under root that are not ignored, at
// most maxDepth directories deep (negative means unlimited). Errors reading
// entries are skipped.
func Walk(root string, maxDepth int, fn fs.WalkDirFunc) error {
	m := NewMatcher(root)
	return filepath.WalkDir(m.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == m.Root() {
			return nil
		}
		if m.Ignored(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() && maxDepth >= 0 {
			rel, _ := filepath.Rel(m.Root(), path)
			if strings.Count(rel, string(filepath.Separator)) >= maxDepth {
				return filepath.SkipDir
			}
		}
		return fn(path, d, nil)
	})
}
