// Package editor defines the front-end collaborator the session drives and an
// in-memory workspace implementation of it.
package editor

import "fmt"

// Position is an editor-facing location: one-based line, one-based column
// counted in characters
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// IsZero reports whether the position is unset
func (p Position) IsZero() bool {
	return p.Line == 0 && p.Column == 0
}

// Location is a position within a file
type Location struct {
	Path     string
	Position Position
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%s", l.Path, l.Position)
}

// Editor performs the user-facing side effects of language server results.
// Methods other than AsyncCall may be called from any goroutine; effects that
// must run on the editor's own context are passed to AsyncCall.
type Editor interface {
	// CurrentPath returns the active document, or "" when none is open
	CurrentPath() string
	// Cursor returns the cursor in the active document
	Cursor() Position
	// FileType returns the language identifier of a document
	FileType(path string) string
	// Text returns a document's current contents
	Text(path string) (string, error)
	// Echo shows a message to the user
	Echo(msg string)
	// Open makes path the active document
	Open(path string) error
	// SetCursor moves the cursor in the active document
	SetCursor(pos Position)
	// Replace substitutes the text between start (inclusive) and end (exclusive)
	Replace(path string, start, end Position, text string) error
	// Reload rereads a document from disk unless it has unsaved changes and
	// reports whether it did
	Reload(path string) bool
	// AsyncCall schedules fn on the editor's context
	AsyncCall(fn func())
}
