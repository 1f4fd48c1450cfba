package constants

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Process management timeouts
const (
	ProcessShutdownTimeout = 5 * time.Second
	ShutdownRequestTimeout = 2 * time.Second
	ExitNotifyTimeout      = 1 * time.Second
	// ExitDrainTimeout bounds how long output written before an exit is still read
	ExitDrainTimeout       = 2 * time.Second
)

// Request bookkeeping
const (
	// LateResponseWindow is how long an evicted request id is remembered, so a
	// response arriving after its timeout is logged at debug instead of warn.
	LateResponseWindow = 30 * time.Second
	// MinSweepInterval bounds how often the timeout sweeper runs
	MinSweepInterval = 100 * time.Millisecond
)

// Transport sizing
const (
	// LSPResponseBufferSize is large enough to hold big workspace/symbol and documentSymbol payloads
	LSPResponseBufferSize = 1024 * 1024
	// StderrLineLimit caps a single stderr line from the server
	StderrLineLimit = 256 * 1024
)

// File and directory constants
const (
	// FileWatchDebounceDelay coalesces bursts of file events
	FileWatchDebounceDelay = 500 * time.Millisecond
)

// SupportedExtensions maps language identifiers to file extensions
var SupportedExtensions = map[string][]string{
	"go":         {".go"},
	"python":     {".py", ".pyi"},
	"javascript": {".js", ".jsx", ".mjs"},
	"typescript": {".ts", ".tsx"},
	"java":       {".java"},
	"rust":       {".rs"},
	"c":          {".c", ".h"},
	"cpp":        {".cc", ".cpp", ".hpp", ".cxx"},
}

// SkipDirectories are never watched or scanned
var SkipDirectories = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"build":        true,
	"dist":         true,
	"target":       true,
	"__pycache__":  true,
	".git":         true,
	".svn":         true,
	".hg":          true,
	".idea":        true,
	".vscode":      true,
}

// GetAllSupportedExtensions returns all supported file extensions
func GetAllSupportedExtensions() []string {
	extensions := make([]string, 0)
	seen := make(map[string]bool)
	for _, exts := range SupportedExtensions {
		for _, ext := range exts {
			if !seen[ext] {
				extensions = append(extensions, ext)
				seen[ext] = true
			}
		}
	}
	sort.Strings(extensions)
	return extensions
}

// LanguageForPath returns the language identifier for a file, or "" when unknown
func LanguageForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	for language, exts := range SupportedExtensions {
		for _, e := range exts {
			if e == ext {
				return language
			}
		}
	}
	return ""
}
