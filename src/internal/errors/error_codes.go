// Package errors provides unified error types and codes.
package errors

// Standard JSON-RPC error codes as defined in RFC 7309
const (
	// Pre-defined JSON-RPC errors
	ParseError     = -32700 // Invalid JSON was received by the server
	InvalidRequest = -32600 // The JSON sent is not a valid Request object
	MethodNotFound = -32601 // The method does not exist / is not available
	InvalidParams  = -32602 // Invalid method parameter(s)
	InternalError  = -32603 // Internal JSON-RPC error
)

// LSP-specific error codes as defined in the LSP specification
const (
	// LSP error codes (range: -32000 to -32099)
	ServerNotInitialized = -32002 // Server not initialized
	UnknownErrorCode     = -32001 // Unknown error code
	RequestCancelled     = -32800 // Request was cancelled
	ContentModified      = -32801 // Content was modified
	ServerCancelled      = -32802 // Server cancelled the request
	RequestFailed        = -32803 // Request failed with unrecoverable error
)

var codeNames = map[int]string{
	ParseError:           "ParseError",
	InvalidRequest:       "InvalidRequest",
	MethodNotFound:       "MethodNotFound",
	InvalidParams:        "InvalidParams",
	InternalError:        "InternalError",
	ServerNotInitialized: "ServerNotInitialized",
	UnknownErrorCode:     "UnknownErrorCode",
	RequestCancelled:     "RequestCancelled",
	ContentModified:      "ContentModified",
	ServerCancelled:      "ServerCancelled",
	RequestFailed:        "RequestFailed",
}

// CodeName returns the symbolic name of a JSON-RPC or LSP error code
func CodeName(code int) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return "Unknown"
}

// IsBenignCode reports codes a client routinely receives and need not alarm the user with
func IsBenignCode(code int) bool {
	return code == RequestCancelled || code == ContentModified || code == ServerCancelled
}
