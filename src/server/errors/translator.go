// Package errors turns language server stderr chatter into actionable log lines.
package errors

import (
	"strings"

	"lspclient/src/internal/common"
	"lspclient/src/internal/types"
)

// ErrorTranslator recognizes well-known failure lines on a server's stderr
type ErrorTranslator interface {
	TranslateAndLogError(serverName, line string, context []string) bool
}

// LSPErrorTranslator logs recognized stderr lines with a suggestion attached
type LSPErrorTranslator struct {
	log *common.SafeLogger
}

// NewLSPErrorTranslator creates a translator that logs through logger
func NewLSPErrorTranslator(logger *common.SafeLogger) *LSPErrorTranslator {
	if logger == nil {
		logger = common.LSPLogger
	}
	return &LSPErrorTranslator{log: logger}
}

var knownMethods = []string{
	types.MethodTextDocumentDefinition,
	types.MethodTextDocumentReferences,
	types.MethodTextDocumentHover,
	types.MethodTextDocumentDocumentSymbol,
	types.MethodTextDocumentRename,
	types.MethodTextDocumentDidOpen,
	types.MethodTextDocumentDidChange,
}

// TranslateAndLogError logs line with guidance when it matches a known failure
// and reports whether it did. context holds the preceding stderr lines.
func (t *LSPErrorTranslator) TranslateAndLogError(serverName, line string, context []string) bool {
	if strings.Contains(line, "KeyError") {
		joined := strings.Join(context, " ")
		if method := extractMethod(joined + " " + line); method != "" {
			t.log.Warn("LSP %s: Server doesn't support %s feature. %s", serverName, method, methodSuggestion(method))
			return true
		}
	}

	if strings.Contains(line, "Method not found") || strings.Contains(line, "MethodNotFound") {
		if method := extractMethod(line); method != "" {
			t.log.Warn("LSP %s: Method '%s' not supported. %s", serverName, method, methodSuggestion(method))
			return true
		}
	}

	if strings.Contains(line, "not supported") || strings.Contains(line, "unsupported") {
		t.log.Warn("LSP %s: Feature not supported by this server. Consider checking server capabilities or using an alternative server.", serverName)
		return true
	}

	if strings.HasPrefix(line, "panic:") || strings.HasPrefix(line, "Traceback (most recent call last)") {
		t.log.Error("LSP %s: server crashed: %s", serverName, common.SanitizeErrorForLogging(line))
		return true
	}

	return false
}

func methodSuggestion(method string) string {
	switch method {
	case types.MethodTextDocumentRename:
		return "The server may need the document opened with didOpen before rename."
	case types.MethodTextDocumentDocumentSymbol:
		return "Check that the server was started with a workspace root containing the file."
	}
	return "Check your LSP server documentation for supported features or consider alternative servers."
}

func extractMethod(errorLine string) string {
	for _, pattern := range knownMethods {
		if strings.Contains(errorLine, pattern) {
			return pattern
		}
	}
	return ""
}
