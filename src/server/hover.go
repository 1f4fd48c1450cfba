package server

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"go.lsp.dev/protocol"

	"lspclient/src/internal/types"
	"lspclient/src/server/pending"
)

// Hover asks for hover information at target and echoes it. then receives the
// displayed text.
func (s *Session) Hover(target Target, then func(string)) *pending.Call {
	if !s.Alive() {
		return nil
	}
	t, ok := s.resolve(target)
	if !ok {
		return nil
	}

	params := &protocol.HoverParams{TextDocumentPositionParams: s.positionParams(t)}
	return s.call(types.MethodTextDocumentHover, params, func(result json.RawMessage) error {
		text := hoverText(result)
		s.effect(func() {
			if text != "" {
				s.editor.Echo(text)
			}
			if then != nil {
				then(text)
			}
		})
		return nil
	})
}

// hoverText concatenates the text of every content fragment, in order. Contents
// may be a string, a MarkedString or MarkupContent object, or an array of those.
func hoverText(result json.RawMessage) string {
	contents := gjson.GetBytes(result, "contents")
	if !contents.Exists() {
		return ""
	}

	var b strings.Builder
	appendFragment := func(fragment gjson.Result) {
		switch {
		case fragment.Type == gjson.String:
			b.WriteString(fragment.String())
		case fragment.IsObject():
			b.WriteString(fragment.Get("value").String())
		}
	}
	if contents.IsArray() {
		contents.ForEach(func(_, fragment gjson.Result) bool {
			appendFragment(fragment)
			return true
		})
	} else {
		appendFragment(contents)
	}
	return b.String()
}
