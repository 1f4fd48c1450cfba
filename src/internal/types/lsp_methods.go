package types

// LSP protocol lifecycle methods
const (
	// MethodInitialize is sent as the first request from client to server
	MethodInitialize = "initialize"
	// MethodInitialized is sent from client to server after the initialize response
	MethodInitialized = "initialized"
	// MethodShutdown is sent from client to server to shutdown the server
	MethodShutdown = "shutdown"
	// MethodExit is sent from client to server to exit the server process
	MethodExit = "exit"
	// MethodCancelRequest asks the server to abandon an outstanding request
	MethodCancelRequest = "$/cancelRequest"
)

// LSP document synchronization methods
const (
	// MethodTextDocumentDidOpen is sent when a document is opened
	MethodTextDocumentDidOpen = "textDocument/didOpen"
	// MethodTextDocumentDidChange is sent when a document's content changes
	MethodTextDocumentDidChange = "textDocument/didChange"
	// MethodTextDocumentDidSave is sent when a document is saved
	MethodTextDocumentDidSave = "textDocument/didSave"
	// MethodTextDocumentDidClose is sent when a document is closed
	MethodTextDocumentDidClose = "textDocument/didClose"
)

// LSP language feature methods
const (
	// MethodTextDocumentDefinition provides go-to-definition functionality
	MethodTextDocumentDefinition = "textDocument/definition"
	// MethodTextDocumentReferences finds all references to a symbol
	MethodTextDocumentReferences = "textDocument/references"
	// MethodTextDocumentHover provides hover information for symbols
	MethodTextDocumentHover = "textDocument/hover"
	// MethodTextDocumentDocumentSymbol returns document symbols outline
	MethodTextDocumentDocumentSymbol = "textDocument/documentSymbol"
	// MethodTextDocumentRename computes a workspace edit renaming a symbol
	MethodTextDocumentRename = "textDocument/rename"
)

// Server-to-client methods
const (
	MethodPublishDiagnostics         = "textDocument/publishDiagnostics"
	MethodWindowShowMessage          = "window/showMessage"
	MethodWindowLogMessage           = "window/logMessage"
	MethodWorkDoneProgressCreate     = "window/workDoneProgress/create"
	MethodProgress                   = "$/progress"
	MethodWorkspaceConfiguration     = "workspace/configuration"
	MethodClientRegisterCapability   = "client/registerCapability"
	MethodClientUnregisterCapability = "client/unregisterCapability"
)
