// Package documents tracks which documents the server has been told about and
// builds the synchronization notifications for them.
package documents

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"lspclient/src/internal/common"
	"lspclient/src/internal/constants"
)

// Document is one open text document
type Document struct {
	Path       string
	URI        protocol.DocumentURI
	LanguageID string
	Version    int32
}

// VersionedIdentifier identifies a specific version of a document
type VersionedIdentifier struct {
	URI     protocol.DocumentURI `json:"uri"`
	Version int32                `json:"version"`
}

// FullChange replaces a document's whole text
type FullChange struct {
	Text string `json:"text"`
}

// DidChangeParams is the payload of a full-sync textDocument/didChange
type DidChangeParams struct {
	TextDocument   VersionedIdentifier `json:"textDocument"`
	ContentChanges []FullChange        `json:"contentChanges"`
}

// Tracker records open documents and their versions. Safe for concurrent use.
type Tracker struct {
	mu   sync.Mutex
	docs map[string]*Document
	log  *common.SafeLogger
}

// NewTracker creates an empty tracker
func NewTracker(logger *common.SafeLogger) *Tracker {
	if logger == nil {
		logger = common.ClientLogger
	}
	return &Tracker{docs: make(map[string]*Document), log: logger}
}

// PathToURI converts a file path into a file:// document URI
func PathToURI(path string) protocol.DocumentURI {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return protocol.DocumentURI(uri.File(path))
}

// URIToPath converts a file:// URI back into a path. Other schemes are returned unchanged.
func URIToPath(docURI string) string {
	if !strings.HasPrefix(docURI, "file://") {
		return docURI
	}
	return uri.URI(docURI).Filename()
}

// DetectLanguage detects the language identifier from a file path or URI
func DetectLanguage(pathOrURI string) string {
	return constants.LanguageForPath(strings.TrimPrefix(pathOrURI, "file://"))
}

// Open records path as open and returns the didOpen payload. The bool is false
// when the document was already open, in which case nothing should be sent.
func (t *Tracker) Open(path, languageID, text string) (*protocol.DidOpenTextDocumentParams, bool) {
	docURI := PathToURI(path)
	if languageID == "" {
		languageID = DetectLanguage(path)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	key := string(docURI)
	if _, open := t.docs[key]; open {
		t.log.Debug("Document already open: %s", docURI)
		return nil, false
	}
	t.docs[key] = &Document{Path: URIToPath(key), URI: docURI, LanguageID: languageID, Version: 1}

	return &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        docURI,
			LanguageID: protocol.LanguageIdentifier(languageID),
			Version:    1,
			Text:       text,
		},
	}, true
}

// Change bumps the version of an open document and returns the didChange payload
func (t *Tracker) Change(path, text string) (*DidChangeParams, error) {
	docURI := PathToURI(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	doc, open := t.docs[string(docURI)]
	if !open {
		return nil, fmt.Errorf("document not open: %s", docURI)
	}
	doc.Version++
	return &DidChangeParams{
		TextDocument:   VersionedIdentifier{URI: docURI, Version: doc.Version},
		ContentChanges: []FullChange{{Text: text}},
	}, nil
}

// Save returns the didSave payload for an open document
func (t *Tracker) Save(path, text string) (*protocol.DidSaveTextDocumentParams, error) {
	docURI := PathToURI(path)
	if !t.IsOpen(path) {
		return nil, fmt.Errorf("document not open: %s", docURI)
	}
	return &protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
		Text:         text,
	}, nil
}

// Close forgets an open document and returns the didClose payload
func (t *Tracker) Close(path string) (*protocol.DidCloseTextDocumentParams, bool) {
	docURI := PathToURI(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, open := t.docs[string(docURI)]; !open {
		return nil, false
	}
	delete(t.docs, string(docURI))
	return &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
	}, true
}

// IsOpen reports whether path has been opened
func (t *Tracker) IsOpen(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, open := t.docs[string(PathToURI(path))]
	return open
}

// Get returns a copy of the tracked document for path
func (t *Tracker) Get(path string) (Document, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	doc, open := t.docs[string(PathToURI(path))]
	if !open {
		return Document{}, false
	}
	return *doc, true
}

// Paths lists the open documents' paths in sorted order
func (t *Tracker) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := make([]string, 0, len(t.docs))
	for _, doc := range t.docs {
		paths = append(paths, doc.Path)
	}
	sort.Strings(paths)
	return paths
}

// Reset forgets every document, used when the server goes away
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs = make(map[string]*Document)
}
