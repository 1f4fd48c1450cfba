package server

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"go.lsp.dev/protocol"

	"lspclient/src/server/editor"
)

// Target names a place in a document. A zero Path or Pos is filled in from the
// editor's active document and cursor.
type Target struct {
	Path string
	Pos  editor.Position
}

// At builds a target at a one-based line and column
func At(path string, line, column int) Target {
	return Target{Path: path, Pos: editor.Position{Line: line, Column: column}}
}

// resolve fills omitted fields from the editor
func (s *Session) resolve(t Target) (Target, bool) {
	if t.Path == "" {
		t.Path = s.editor.CurrentPath()
	}
	if t.Pos.IsZero() {
		t.Pos = s.editor.Cursor()
	}
	if t.Path == "" {
		s.log.Warn("No document given and none active in the editor")
		return t, false
	}
	if t.Pos.Line < 1 {
		t.Pos.Line = 1
	}
	if t.Pos.Column < 1 {
		t.Pos.Column = 1
	}
	return t, true
}

// lineText returns the zero-based line of a document, or "" when unavailable
func (s *Session) lineText(path string, line int) string {
	text, err := s.editor.Text(path)
	if err != nil {
		return ""
	}
	for i := 0; i < line; i++ {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			return ""
		}
		text = text[idx+1:]
	}
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSuffix(text, "\r")
}

// toProtocol converts a one-based editor position into a zero-based protocol
// position whose character offset counts UTF-16 code units
func (s *Session) toProtocol(path string, pos editor.Position) protocol.Position {
	line := pos.Line - 1
	if line < 0 {
		line = 0
	}
	return protocol.Position{
		Line:      uint32(line),
		Character: uint32(runesToUTF16(s.lineText(path, line), pos.Column-1)),
	}
}

// fromProtocol converts a protocol position into a one-based editor position
func (s *Session) fromProtocol(path string, pos protocol.Position) editor.Position {
	line := int(pos.Line)
	return editor.Position{
		Line:   line + 1,
		Column: utf16ToRunes(s.lineText(path, line), int(pos.Character)) + 1,
	}
}

// runesToUTF16 returns how many UTF-16 units the first n runes of line occupy.
// Runes past the end of line count as one unit each.
// utf16Len returns the length of s in UTF-16 code units
func utf16Len(s string) int {
	return runesToUTF16(s, utf8.RuneCountInString(s))
}

func runesToUTF16(line string, n int) int {
	units := 0
	for i := 0; i < n; i++ {
		if line == "" {
			units += n - i
			break
		}
		r, size := utf8.DecodeRuneInString(line)
		line = line[size:]
		units += utf16.RuneLen(r)
	}
	return units
}

// utf16ToRunes returns how many runes of line fit in the first units UTF-16 units
func utf16ToRunes(line string, units int) int {
	runes := 0
	for units > 0 {
		if line == "" {
			return runes + units
		}
		r, size := utf8.DecodeRuneInString(line)
		line = line[size:]
		units -= utf16.RuneLen(r)
		runes++
	}
	return runes
}
