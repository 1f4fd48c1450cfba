package types

// ClientConfig contains configuration for an LSP client
type ClientConfig struct {
	Command               string
	Args                  []string
	WorkingDir            string
	InitializationOptions interface{} // Optional initialization options from config
}
