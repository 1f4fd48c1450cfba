package cli

import (
	"os/exec"
	"path/filepath"

	"lspclient/src/config"
	"lspclient/src/internal/common"
)

// loadConfig loads the file at configPath, or the default file when empty,
// applies environment overrides and sets the global log level
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := common.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	common.SetGlobalLevel(level)

	autoDetectInstalledServers(cfg)
	return cfg, nil
}

// autoDetectInstalledServers points servers whose command is not on PATH at a
// copy installed under ~/.lspclient/tools/{language}
func autoDetectInstalledServers(cfg *config.Config) {
	if cfg == nil {
		return
	}
	for language, server := range cfg.Servers {
		if server == nil || filepath.IsAbs(server.Command) {
			continue
		}
		if _, err := exec.LookPath(server.Command); err == nil {
			continue
		}
		if installed := common.FindExecutable(common.ToolRoot(language), server.Command); installed != "" {
			common.CLILogger.Info("Auto-detected installed %s at: %s", server.Command, installed)
			server.Command = installed
		}
	}
}
