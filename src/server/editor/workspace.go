package editor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"lspclient/src/internal/constants"
)

type buffer struct {
	lines    []string
	modified bool
}

// Workspace is an Editor over files on disk, buffered in memory. Effects passed
// to AsyncCall run in order on the goroutine executing Run.
type Workspace struct {
	mu       sync.Mutex
	buffers  map[string]*buffer
	current  string
	cursor   Position
	out      io.Writer
	messages []string

	// Effects never block the caller: the queue grows while Run is busy.
	queueMu sync.Mutex
	queue   []func()
	wake    chan struct{}
}

// NewWorkspace creates a workspace echoing messages to out (nil discards them)
func NewWorkspace(out io.Writer) *Workspace {
	if out == nil {
		out = io.Discard
	}
	return &Workspace{
		buffers: make(map[string]*buffer),
		out:     out,
		wake:    make(chan struct{}, 1),
	}
}

// Run executes queued effects until ctx is done
func (w *Workspace) Run(ctx context.Context) {
	for {
		if fn := w.next(); fn != nil {
			fn()
			continue
		}
		select {
		case <-w.wake:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Workspace) next() func() {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	if len(w.queue) == 0 {
		return nil
	}
	fn := w.queue[0]
	w.queue[0] = nil
	w.queue = w.queue[1:]
	return fn
}

// AsyncCall schedules fn on the Run goroutine. It never blocks.
func (w *Workspace) AsyncCall(fn func()) {
	w.queueMu.Lock()
	w.queue = append(w.queue, fn)
	w.queueMu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of effects waiting to run
func (w *Workspace) Pending() int {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	return len(w.queue)
}

// Sync blocks until every effect queued before it has run, or ctx ends
func (w *Workspace) Sync(ctx context.Context) error {
	done := make(chan struct{})
	w.AsyncCall(func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// load returns the buffer for path, reading it from disk on first use. w.mu must be held.
func (w *Workspace) load(path string) (*buffer, error) {
	if b, ok := w.buffers[path]; ok {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	b := &buffer{lines: strings.Split(string(data), "\n")}
	w.buffers[path] = b
	return b, nil
}

// CurrentPath returns the active document
func (w *Workspace) CurrentPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Cursor returns the cursor position
func (w *Workspace) Cursor() Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cursor
}

// FileType derives the language identifier from the file extension
func (w *Workspace) FileType(path string) string {
	return constants.LanguageForPath(path)
}

// Text returns the buffered contents of path
func (w *Workspace) Text(path string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.load(normalize(path))
	if err != nil {
		return "", err
	}
	return strings.Join(b.lines, "\n"), nil
}

// Line returns one line (one-based) of a document
func (w *Workspace) Line(path string, line int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.load(normalize(path))
	if err != nil {
		return "", err
	}
	if line < 1 || line > len(b.lines) {
		return "", fmt.Errorf("line %d out of range in %s", line, path)
	}
	return b.lines[line-1], nil
}

// SetText replaces a document's buffered contents
func (w *Workspace) SetText(path, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffers[normalize(path)] = &buffer{lines: strings.Split(text, "\n"), modified: true}
}

// Echo records and prints a message
func (w *Workspace) Echo(msg string) {
	w.mu.Lock()
	w.messages = append(w.messages, msg)
	w.mu.Unlock()
	fmt.Fprintln(w.out, msg)
}

// Messages returns every echoed message so far
func (w *Workspace) Messages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.messages...)
}

// Open makes path the active document with the cursor at its start
func (w *Workspace) Open(path string) error {
	path = normalize(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.load(path); err != nil {
		return err
	}
	if w.current != path {
		w.current = path
		w.cursor = Position{Line: 1, Column: 1}
	}
	return nil
}

// SetCursor moves the cursor, clamped to the active document
func (w *Workspace) SetCursor(pos Position) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.buffers[w.current]; ok {
		pos.Line = clamp(pos.Line, 1, len(b.lines))
		pos.Column = clamp(pos.Column, 1, len([]rune(b.lines[pos.Line-1]))+1)
	}
	w.cursor = pos
}

// Replace substitutes the text between start and end
func (w *Workspace) Replace(path string, start, end Position, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.load(normalize(path))
	if err != nil {
		return err
	}
	if start.Line < 1 || start.Line > len(b.lines) || end.Line < start.Line || end.Line > len(b.lines) {
		return fmt.Errorf("range %s-%s out of bounds in %s", start, end, path)
	}

	first := []rune(b.lines[start.Line-1])
	last := []rune(b.lines[end.Line-1])
	prefix := string(first[:clamp(start.Column-1, 0, len(first))])
	suffix := string(last[clamp(end.Column-1, 0, len(last)):])

	replaced := strings.Split(prefix+text+suffix, "\n")
	lines := make([]string, 0, len(b.lines)-(end.Line-start.Line)+len(replaced)-1)
	lines = append(lines, b.lines[:start.Line-1]...)
	lines = append(lines, replaced...)
	lines = append(lines, b.lines[end.Line:]...)
	b.lines = lines
	b.modified = true
	return nil
}

// Save writes a modified buffer back to disk
func (w *Workspace) Save(path string) error {
	path = normalize(path)
	w.mu.Lock()
	b, ok := w.buffers[path]
	if !ok || !b.modified {
		w.mu.Unlock()
		return nil
	}
	data := strings.Join(b.lines, "\n")
	b.modified = false
	w.mu.Unlock()

	info, err := os.Stat(path)
	mode := os.FileMode(0644)
	if err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(path, []byte(data), mode)
}

// Modified lists documents with unsaved changes
func (w *Workspace) Modified() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var paths []string
	for path, b := range w.buffers {
		if b.modified {
			paths = append(paths, path)
		}
	}
	return paths
}

// Reload drops the buffer for path so the next access rereads the file. Buffers
// with unsaved changes are kept.
func (w *Workspace) Reload(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	path = normalize(path)
	if b, ok := w.buffers[path]; ok && b.modified {
		return false
	}
	delete(w.buffers, path)
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
