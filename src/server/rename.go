package server

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"go.lsp.dev/protocol"

	"lspclient/src/internal/types"
	"lspclient/src/server/documents"
	"lspclient/src/server/editor"
	"lspclient/src/server/pending"
)

// AppliedEdit is one replacement performed by Rename, in editor coordinates
type AppliedEdit struct {
	Path    string
	Start   editor.Position
	End     editor.Position
	NewText string
}

type textEdit struct {
	Start   protocol.Position
	End     protocol.Position
	NewText string
}

type documentEdits struct {
	Path  string
	Edits []textEdit
}

func parseTextEdits(edits gjson.Result) []textEdit {
	var out []textEdit
	edits.ForEach(func(_, e gjson.Result) bool {
		out = append(out, textEdit{
			Start:   positionOf(e.Get("range.start")),
			End:     positionOf(e.Get("range.end")),
			NewText: e.Get("newText").String(),
		})
		return true
	})
	return out
}

// parseWorkspaceEdit reads documentChanges when present, else changes, keeping
// the order the server sent
func parseWorkspaceEdit(result json.RawMessage) []documentEdits {
	var docs []documentEdits
	if changes := gjson.GetBytes(result, "documentChanges"); changes.IsArray() {
		changes.ForEach(func(_, change gjson.Result) bool {
			docURI := change.Get("textDocument.uri").String()
			if docURI == "" {
				// create/rename/delete file operations are not applied
				return true
			}
			docs = append(docs, documentEdits{Path: documents.URIToPath(docURI), Edits: parseTextEdits(change.Get("edits"))})
			return true
		})
		return docs
	}
	gjson.GetBytes(result, "changes").ForEach(func(key, edits gjson.Result) bool {
		docs = append(docs, documentEdits{Path: documents.URIToPath(key.String()), Edits: parseTextEdits(edits)})
		return true
	})
	return docs
}

// driftRisk reports whether applying edits in order without adjusting later
// coordinates can misplace a later edit: an earlier edit changed the line count
// above it or the length of its line before it
func driftRisk(edits []textEdit) bool {
	for i, earlier := range edits {
		lineDelta := int(earlier.End.Line) - int(earlier.Start.Line) != countNewlines(earlier.NewText)
		sameLineLenChange := earlier.Start.Line == earlier.End.Line &&
			utf16Len(earlier.NewText) != int(earlier.End.Character)-int(earlier.Start.Character)
		for _, later := range edits[i+1:] {
			if lineDelta && later.Start.Line > earlier.Start.Line {
				return true
			}
			if sameLineLenChange && later.Start.Line == earlier.Start.Line && later.Start.Character >= earlier.Start.Character {
				return true
			}
		}
	}
	return false
}

func countNewlines(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n++
		}
	}
	return n
}

// Rename renames the symbol at target to newName across the workspace. Edits
// are applied in the order received, without renumbering later edits for the
// drift earlier ones cause, and the cursor is restored afterwards.
func (s *Session) Rename(target Target, newName string, then func([]AppliedEdit)) *pending.Call {
	if !s.Alive() {
		return nil
	}
	t, ok := s.resolve(target)
	if !ok {
		return nil
	}

	params := &protocol.RenameParams{
		TextDocumentPositionParams: s.positionParams(t),
		NewName:                    newName,
	}
	return s.call(types.MethodTextDocumentRename, params, func(result json.RawMessage) error {
		docs := parseWorkspaceEdit(result)
		for _, doc := range docs {
			if driftRisk(doc.Edits) {
				s.log.Warn("Rename edits in %s are applied in order without adjusting for earlier edits; later positions may drift", doc.Path)
			}
		}
		s.effect(func() {
			applied := s.applyRename(docs)
			if then != nil {
				then(applied)
			}
		})
		return nil
	})
}

// applyRename runs on the editor context
func (s *Session) applyRename(docs []documentEdits) []AppliedEdit {
	origPath := s.editor.CurrentPath()
	origCursor := s.editor.Cursor()

	var applied []AppliedEdit
	for _, doc := range docs {
		for _, e := range doc.Edits {
			start := s.fromProtocol(doc.Path, e.Start)
			end := s.fromProtocol(doc.Path, e.End)
			if err := s.editor.Replace(doc.Path, start, end, e.NewText); err != nil {
				s.log.Error("Failed to apply edit %s-%s in %s: %v", start, end, doc.Path, err)
				s.editor.Echo(fmt.Sprintf("lspclient: %v", err))
				continue
			}
			applied = append(applied, AppliedEdit{Path: doc.Path, Start: start, End: end, NewText: e.NewText})
		}
		if s.docs.IsOpen(doc.Path) {
			if text, err := s.editor.Text(doc.Path); err == nil {
				if err := s.DidChange(doc.Path, text); err != nil {
					s.log.Warn("Failed to sync %s after rename: %v", doc.Path, err)
				}
			}
		}
	}

	if origPath != "" && s.editor.CurrentPath() != origPath {
		if err := s.editor.Open(origPath); err != nil {
			s.log.Warn("Failed to return to %s: %v", origPath, err)
		}
	}
	s.editor.SetCursor(origCursor)
	s.editor.Echo(fmt.Sprintf("lspclient: applied %d edits in %d files", len(applied), len(docs)))
	return applied
}
