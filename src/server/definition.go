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

// rawLocation is a Location or LocationLink reduced to the fields we act on
type rawLocation struct {
	URI   string
	Start protocol.Position
}

// parseLocations accepts null, a Location, a Location[] or a LocationLink[]
func parseLocations(result json.RawMessage) []rawLocation {
	r := gjson.ParseBytes(result)
	var items []gjson.Result
	switch {
	case r.IsArray():
		items = r.Array()
	case r.IsObject():
		items = []gjson.Result{r}
	default:
		return nil
	}

	locations := make([]rawLocation, 0, len(items))
	for _, item := range items {
		loc := rawLocation{URI: item.Get("uri").String()}
		start := item.Get("range.start")
		if loc.URI == "" {
			loc.URI = item.Get("targetUri").String()
			start = item.Get("targetSelectionRange.start")
		}
		if loc.URI == "" {
			continue
		}
		loc.Start = positionOf(start)
		locations = append(locations, loc)
	}
	return locations
}

func (s *Session) toEditorLocation(loc rawLocation) editor.Location {
	path := documents.URIToPath(loc.URI)
	return editor.Location{Path: path, Position: s.fromProtocol(path, loc.Start)}
}

func (s *Session) positionParams(t Target) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: documents.PathToURI(t.Path)},
		Position:     s.toProtocol(t.Path, t.Pos),
	}
}

// Definition jumps to the definition of the symbol at target. Only the first
// returned location is used. then receives where the cursor went.
func (s *Session) Definition(target Target, then func(editor.Location)) *pending.Call {
	if !s.Alive() {
		return nil
	}
	t, ok := s.resolve(target)
	if !ok {
		return nil
	}

	params := &protocol.DefinitionParams{TextDocumentPositionParams: s.positionParams(t)}
	return s.call(types.MethodTextDocumentDefinition, params, func(result json.RawMessage) error {
		locations := parseLocations(result)
		if len(locations) == 0 {
			s.echo("lspclient: no definition found")
			return nil
		}
		if len(locations) > 1 {
			s.log.Warn("Definition returned %d locations, using the first", len(locations))
		}
		loc := s.toEditorLocation(locations[0])

		s.effect(func() {
			if loc.Path != s.editor.CurrentPath() {
				if err := s.editor.Open(loc.Path); err != nil {
					s.editor.Echo(fmt.Sprintf("lspclient: %v", err))
					return
				}
				if err := s.DidOpen(loc.Path, ""); err != nil {
					s.log.Warn("Failed to open %s on the server: %v", loc.Path, err)
				}
			}
			s.editor.SetCursor(loc.Position)
			if then != nil {
				then(loc)
			}
		})
		return nil
	})
}

// References lists every reference to the symbol at target
func (s *Session) References(target Target, includeDeclaration bool, then func([]editor.Location)) *pending.Call {
	if !s.Alive() {
		return nil
	}
	t, ok := s.resolve(target)
	if !ok {
		return nil
	}

	params := &protocol.ReferenceParams{
		TextDocumentPositionParams: s.positionParams(t),
		Context:                    protocol.ReferenceContext{IncludeDeclaration: includeDeclaration},
	}
	return s.call(types.MethodTextDocumentReferences, params, func(result json.RawMessage) error {
		raw := parseLocations(result)
		locations := make([]editor.Location, 0, len(raw))
		for _, loc := range raw {
			locations = append(locations, s.toEditorLocation(loc))
		}
		s.effect(func() {
			if len(locations) == 0 {
				s.editor.Echo("lspclient: no references found")
			}
			for _, loc := range locations {
				s.editor.Echo(loc.String())
			}
			if then != nil {
				then(locations)
			}
		})
		return nil
	})
}
