package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"

	"lspclient/src/internal/types"
	"lspclient/src/server/dispatch"
	"lspclient/src/server/documents"
)

// Diagnostic is a server-reported problem in editor coordinates
type Diagnostic struct {
	Path     string
	Line     int
	Column   int
	Severity string
	Source   string
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.Path, d.Line, d.Column, d.Severity, d.Message)
}

var severityNames = map[int]string{1: "error", 2: "warning", 3: "info", 4: "hint"}

// handlers is the static table of server-to-client methods this session serves
func (s *Session) handlers() map[string]dispatch.Handler {
	return map[string]dispatch.Handler{
		types.MethodPublishDiagnostics:         s.publishDiagnostics,
		types.MethodWindowShowMessage:          s.showMessage,
		types.MethodWindowLogMessage:           s.logMessage,
		types.MethodProgress:                   s.progress,
		types.MethodWorkspaceConfiguration:     s.workspaceConfiguration,
		types.MethodClientRegisterCapability:   acknowledge,
		types.MethodClientUnregisterCapability: acknowledge,
		types.MethodWorkDoneProgressCreate:     acknowledge,
	}
}

func acknowledge(context.Context, json.RawMessage) (interface{}, error) {
	return nil, nil
}

func (s *Session) publishDiagnostics(_ context.Context, params json.RawMessage) (interface{}, error) {
	if !gjson.ValidBytes(params) {
		return nil, fmt.Errorf("invalid publishDiagnostics params")
	}
	path := documents.URIToPath(gjson.GetBytes(params, "uri").String())

	items := gjson.GetBytes(params, "diagnostics").Array()
	diags := make([]Diagnostic, 0, len(items))
	for _, d := range items {
		pos := s.fromProtocol(path, positionOf(d.Get("range.start")))
		severity := severityNames[int(d.Get("severity").Int())]
		if severity == "" {
			severity = "error"
		}
		diags = append(diags, Diagnostic{
			Path:     path,
			Line:     pos.Line,
			Column:   pos.Column,
			Severity: severity,
			Source:   d.Get("source").String(),
			Message:  d.Get("message").String(),
		})
	}

	s.diagMu.Lock()
	if len(diags) == 0 {
		delete(s.diagnostics, path)
	} else {
		s.diagnostics[path] = diags
	}
	s.diagMu.Unlock()

	s.effect(func() {
		for _, d := range diags {
			s.editor.Echo(d.String())
		}
	})
	return nil, nil
}

// Diagnostics returns the latest diagnostics published for path
func (s *Session) Diagnostics(path string) []Diagnostic {
	path = documents.URIToPath(string(documents.PathToURI(path)))
	s.diagMu.Lock()
	defer s.diagMu.Unlock()
	return append([]Diagnostic(nil), s.diagnostics[path]...)
}

// DiagnosticPaths lists documents that currently have diagnostics
func (s *Session) DiagnosticPaths() []string {
	s.diagMu.Lock()
	defer s.diagMu.Unlock()
	paths := make([]string, 0, len(s.diagnostics))
	for path := range s.diagnostics {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (s *Session) showMessage(_ context.Context, params json.RawMessage) (interface{}, error) {
	message := gjson.GetBytes(params, "message").String()
	s.echo("lspclient: " + message)
	return nil, nil
}

func (s *Session) logMessage(_ context.Context, params json.RawMessage) (interface{}, error) {
	fields := gjson.GetManyBytes(params, "type", "message")
	message := fields[1].String()
	switch fields[0].Int() {
	case 1:
		s.log.Error("server: %s", message)
	case 2:
		s.log.Warn("server: %s", message)
	case 3:
		s.log.Info("server: %s", message)
	default:
		s.log.Debug("server: %s", message)
	}
	return nil, nil
}

func (s *Session) progress(_ context.Context, params json.RawMessage) (interface{}, error) {
	fields := gjson.GetManyBytes(params, "token", "value.kind", "value.title", "value.message", "value.percentage")
	s.log.Debug("progress %s: %s %s %s %s", fields[0].String(), fields[1].String(), fields[2].String(), fields[3].String(), fields[4].String())
	return nil, nil
}

// workspaceConfiguration answers with an empty configuration for every item
func (s *Session) workspaceConfiguration(_ context.Context, params json.RawMessage) (interface{}, error) {
	items := gjson.GetBytes(params, "items").Array()
	result := make([]interface{}, len(items))
	for i := range items {
		result[i] = map[string]interface{}{}
	}
	return result, nil
}
