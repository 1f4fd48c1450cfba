package server

import (
	"fmt"

	"lspclient/src/internal/types"
)

// DidOpen tells the server about a document. An empty path means the active
// document; an empty languageID is taken from the editor.
func (s *Session) DidOpen(path, languageID string) error {
	if !s.Alive() {
		return nil
	}
	if path == "" {
		path = s.editor.CurrentPath()
	}
	if path == "" {
		return fmt.Errorf("no document to open")
	}
	if languageID == "" {
		languageID = s.editor.FileType(path)
	}
	text, err := s.editor.Text(path)
	if err != nil {
		return err
	}

	params, first := s.docs.Open(path, languageID, text)
	if !first {
		return nil
	}
	if err := s.notify(types.MethodTextDocumentDidOpen, params); err != nil {
		s.docs.Close(path)
		return err
	}
	s.log.Debug("Opened %s as %s", path, languageID)
	return nil
}

// DidChange sends a document's full new text. Unopened documents are opened instead.
func (s *Session) DidChange(path, text string) error {
	if !s.Alive() {
		return nil
	}
	if !s.docs.IsOpen(path) {
		return s.DidOpen(path, "")
	}
	params, err := s.docs.Change(path, text)
	if err != nil {
		return err
	}
	return s.notify(types.MethodTextDocumentDidChange, params)
}

// DidSave tells the server an open document was written to disk
func (s *Session) DidSave(path string) error {
	if !s.Alive() || !s.docs.IsOpen(path) {
		return nil
	}
	text, err := s.editor.Text(path)
	if err != nil {
		return err
	}
	params, err := s.docs.Save(path, text)
	if err != nil {
		return err
	}
	return s.notify(types.MethodTextDocumentDidSave, params)
}

// DidClose tells the server a document is no longer open
func (s *Session) DidClose(path string) error {
	if !s.Alive() {
		return nil
	}
	params, open := s.docs.Close(path)
	if !open {
		return nil
	}
	return s.notify(types.MethodTextDocumentDidClose, params)
}

// IsOpen reports whether the server has been told about path
func (s *Session) IsOpen(path string) bool {
	return s.docs.IsOpen(path)
}
