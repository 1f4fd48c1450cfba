// Package capabilities holds the feature set a server declared at initialization.
package capabilities

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"lspclient/src/internal/common"
	"lspclient/src/internal/types"
)

// methodProviders maps request methods to the capability that advertises them
var methodProviders = map[string]string{
	types.MethodTextDocumentDefinition:     "definitionProvider",
	types.MethodTextDocumentReferences:     "referencesProvider",
	types.MethodTextDocumentHover:          "hoverProvider",
	types.MethodTextDocumentDocumentSymbol: "documentSymbolProvider",
	types.MethodTextDocumentRename:         "renameProvider",
}

// Set maps capability names to their declared values. It is written once after
// the initialize exchange and is read-only afterwards.
type Set struct {
	mu     sync.RWMutex
	stored bool
	values map[string]json.RawMessage
	log    *common.SafeLogger
}

// NewSet creates an empty, unwritten capability set
func NewSet(logger *common.SafeLogger) *Set {
	if logger == nil {
		logger = common.ClientLogger
	}
	return &Set{values: map[string]json.RawMessage{}, log: logger}
}

// ParseInitializeResult extracts the capabilities object from an initialize result
func ParseInitializeResult(result json.RawMessage, serverCommand string) (map[string]json.RawMessage, error) {
	caps := gjson.GetBytes(result, "capabilities")
	if !caps.Exists() || !caps.IsObject() {
		return nil, fmt.Errorf("initialize result has no capabilities object")
	}
	values := make(map[string]json.RawMessage)
	if err := json.Unmarshal([]byte(caps.Raw), &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal initialize response: %w", err)
	}

	// jdtls supports all textDocument methods but may not report them correctly
	// and OmniSharp is known to under-report, so core features are assumed
	command := strings.ToLower(serverCommand)
	if strings.Contains(command, "jdtls") || strings.Contains(command, "omnisharp") {
		for _, provider := range methodProviders {
			if _, ok := values[provider]; !ok {
				values[provider] = json.RawMessage("true")
			}
		}
	}
	return values, nil
}

// Store writes the set. Only the first call takes effect.
func (s *Set) Store(values map[string]json.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stored {
		s.log.Warn("Server capabilities already recorded, ignoring second initialize result")
		return false
	}
	for name, v := range values {
		s.values[name] = append(json.RawMessage(nil), v...)
	}
	s.stored = true
	return true
}

// Stored reports whether capabilities have been recorded
func (s *Set) Stored() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stored
}

// Get returns the raw declared value of a capability
func (s *Set) Get(name string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Has reports whether a capability is declared and enabled. false, null and a
// missing entry all count as disabled; options objects count as enabled.
func (s *Set) Has(name string) bool {
	v, ok := s.Get(name)
	if !ok {
		return false
	}
	r := gjson.ParseBytes(v)
	switch r.Type {
	case gjson.False, gjson.Null:
		return false
	default:
		return true
	}
}

// Names lists declared capability names in sorted order
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supports reports whether the server advertised the provider for method.
// Methods with no associated provider, and everything before initialization,
// are assumed supported.
func (s *Set) Supports(method string) bool {
	provider, ok := methodProviders[method]
	if !ok || !s.Stored() {
		return true
	}
	return s.Has(provider)
}
