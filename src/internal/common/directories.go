package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigDirName is the per-user directory holding configuration, traces and tools
const ConfigDirName = ".lspclient"

// HomeDir returns ~/.lspclient, or ./.lspclient when the home directory is unknown
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ConfigDirName)
	}
	return filepath.Join(home, ConfigDirName)
}

// ToolRoot returns the directory language servers for language are installed in:
// ~/.lspclient/tools/{language}
func ToolRoot(language string) string {
	return filepath.Join(HomeDir(), "tools", language)
}

// ExpandPath expands a leading ~ to the user's home directory
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		// ~user is not supported
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path, fmt.Errorf("failed to get user home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
