// Package security checks configured server commands before they are launched.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// shellMetacharacters never appear in a plain server invocation. Servers are
// started without a shell, so their presence means a command line was pasted
// where an argument list was expected.
var shellMetacharacters = []string{"|", "&", ";", "`", "$(", "\n", "\x00"}

// ValidateServerCommand rejects an empty command and arguments carrying shell
// syntax
func ValidateServerCommand(command string, args []string) error {
	name := strings.TrimSpace(command)
	if name == "" {
		return fmt.Errorf("empty server command")
	}
	if strings.ContainsAny(filepath.Base(name), " \t") && !strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("server command %q contains spaces; put arguments in args", command)
	}
	if err := checkShellSyntax(command); err != nil {
		return fmt.Errorf("server command: %w", err)
	}
	for _, arg := range args {
		if err := checkShellSyntax(arg); err != nil {
			return fmt.Errorf("server argument: %w", err)
		}
	}
	return nil
}

func checkShellSyntax(s string) error {
	for _, meta := range shellMetacharacters {
		if strings.Contains(s, meta) {
			return fmt.Errorf("shell syntax %q detected in %q", meta, s)
		}
	}
	return nil
}
