package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"lspclient/src/internal/types"
	"lspclient/src/internal/version"
	"lspclient/src/server/capabilities"
	"lspclient/src/server/documents"
	"lspclient/src/server/pending"
)

const clientName = "lspclient"

// Initialize performs the initialize handshake rooted at rootPath (the working
// directory when empty). then receives the recorded capabilities.
func (s *Session) Initialize(rootPath string, then func(*capabilities.Set)) *pending.Call {
	if !s.Alive() {
		return nil
	}

	root := rootPath
	if root == "" {
		root = s.config.WorkingDir
	}
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		} else {
			root = os.TempDir()
		}
	}
	root, _ = filepath.Abs(root)

	return s.call(types.MethodInitialize, s.initializeParams(root), func(result json.RawMessage) error {
		values, err := capabilities.ParseInitializeResult(result, s.config.Command)
		if err != nil {
			return err
		}
		s.caps.Store(values)
		if err := s.notify(types.MethodInitialized, map[string]interface{}{}); err != nil {
			return fmt.Errorf("failed to send initialized notification: %w", err)
		}
		s.log.Info("Server %s initialized with %d capabilities", s.config.Command, len(values))
		s.effect(func() {
			s.editor.Echo("lspclient started.")
			if then != nil {
				then(s.caps)
			}
		})
		return nil
	})
}

func (s *Session) initializeParams(root string) map[string]interface{} {
	rootURI := documents.PathToURI(root)
	params := map[string]interface{}{
		"processId": os.Getpid(),
		"clientInfo": map[string]interface{}{
			"name":    clientName,
			"version": version.GetVersion(),
		},
		"rootUri":  rootURI,
		"rootPath": root,
		"workspaceFolders": []map[string]interface{}{
			{
				"uri":  rootURI,
				"name": filepath.Base(root),
			},
		},
		"capabilities": map[string]interface{}{
			"workspace": map[string]interface{}{
				"configuration":    true,
				"workspaceFolders": true,
				"workspaceEdit":    map[string]interface{}{"documentChanges": true},
			},
			"window": map[string]interface{}{
				"workDoneProgress": true,
			},
			"textDocument": map[string]interface{}{
				"publishDiagnostics": map[string]interface{}{
					"relatedInformation": true,
				},
				"synchronization": map[string]interface{}{
					"didSave": true,
				},
				"hover": map[string]interface{}{
					"contentFormat": []string{"plaintext", "markdown"},
				},
				"definition": map[string]interface{}{
					"linkSupport": true,
				},
				"references": map[string]interface{}{},
				"documentSymbol": map[string]interface{}{
					"hierarchicalDocumentSymbolSupport": true,
				},
				"rename": map[string]interface{}{},
			},
		},
		"trace": "off",
	}
	if opts := convertValue(s.config.InitializationOptions); opts != nil {
		params["initializationOptions"] = opts
	}
	return params
}

// convertValue recursively converts YAML-decoded maps so they marshal as JSON objects
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(val))
		for k, item := range val {
			if key, ok := k.(string); ok {
				result[key] = convertValue(item)
			}
		}
		return result
	case map[string]interface{}:
		result := make(map[string]interface{}, len(val))
		for k, item := range val {
			result[k] = convertValue(item)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(val))
		for i, item := range val {
			result[i] = convertValue(item)
		}
		return result
	default:
		return v
	}
}
