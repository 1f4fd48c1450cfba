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

var symbolKindNames = [...]string{
	"", "File", "Module", "Namespace", "Package", "Class", "Method", "Property", "Field",
	"Constructor", "Enum", "Interface", "Function", "Variable", "Constant", "String",
	"Number", "Boolean", "Array", "Object", "Key", "Null", "EnumMember", "Struct",
	"Event", "Operator", "TypeParameter",
}

// SymbolKindName returns the display name of an LSP symbol kind
func SymbolKindName(kind int) string {
	if kind > 0 && kind < len(symbolKindNames) {
		return symbolKindNames[kind]
	}
	return fmt.Sprintf("Kind(%d)", kind)
}

// Symbol is one entry of a document outline
type Symbol struct {
	Name      string
	Kind      int
	Container string
	Location  editor.Location
}

func (sym Symbol) String() string {
	name := sym.Name
	if sym.Container != "" {
		name = sym.Container + "." + sym.Name
	}
	return fmt.Sprintf("%s %s (%s)", sym.Location.Position, name, SymbolKindName(sym.Kind))
}

// parseSymbols accepts DocumentSymbol[] (flattened depth-first with container
// names) and SymbolInformation[]
func (s *Session) parseSymbols(path string, result json.RawMessage) []Symbol {
	var symbols []Symbol
	var walk func(container string, items gjson.Result)
	walk = func(container string, items gjson.Result) {
		items.ForEach(func(_, item gjson.Result) bool {
			sym := Symbol{
				Name:      item.Get("name").String(),
				Kind:      int(item.Get("kind").Int()),
				Container: container,
			}
			if loc := item.Get("location"); loc.Exists() {
				// SymbolInformation
				symPath := documents.URIToPath(loc.Get("uri").String())
				sym.Container = item.Get("containerName").String()
				sym.Location = editor.Location{Path: symPath, Position: s.fromProtocol(symPath, positionOf(loc.Get("range.start")))}
				symbols = append(symbols, sym)
				return true
			}

			start := item.Get("selectionRange.start")
			if !start.Exists() {
				start = item.Get("range.start")
			}
			sym.Location = editor.Location{Path: path, Position: s.fromProtocol(path, positionOf(start))}
			symbols = append(symbols, sym)

			if children := item.Get("children"); children.IsArray() {
				child := sym.Name
				if container != "" {
					child = container + "." + sym.Name
				}
				walk(child, children)
			}
			return true
		})
	}
	walk("", gjson.ParseBytes(result))
	return symbols
}

func positionOf(r gjson.Result) protocol.Position {
	return protocol.Position{
		Line:      uint32(r.Get("line").Uint()),
		Character: uint32(r.Get("character").Uint()),
	}
}

// DocumentSymbols lists the symbols of path (the active document when empty)
func (s *Session) DocumentSymbols(path string, then func([]Symbol)) *pending.Call {
	if !s.Alive() {
		return nil
	}
	t, ok := s.resolve(Target{Path: path, Pos: editor.Position{Line: 1, Column: 1}})
	if !ok {
		return nil
	}

	params := &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: documents.PathToURI(t.Path)},
	}
	return s.call(types.MethodTextDocumentDocumentSymbol, params, func(result json.RawMessage) error {
		symbols := s.parseSymbols(t.Path, result)
		s.effect(func() {
			for _, sym := range symbols {
				s.editor.Echo(sym.String())
			}
			if then != nil {
				then(symbols)
			}
		})
		return nil
	})
}
