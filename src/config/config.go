package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"lspclient/src/internal/common"
	"lspclient/src/internal/constants"
	"lspclient/src/internal/project"
	"lspclient/src/internal/security"
	"lspclient/src/internal/types"
)

// Config contains client and language server configuration
type Config struct {
	Servers        map[string]*ServerConfig `yaml:"servers"`
	RequestTimeout time.Duration            `yaml:"request_timeout,omitempty"`
	TraceDB        string                   `yaml:"trace_db,omitempty"`
	Watch          bool                     `yaml:"watch,omitempty"`
	LogLevel       string                   `yaml:"log_level,omitempty"`
}

// ServerConfig contains configuration for a single LSP server
type ServerConfig struct {
	Command               string      `yaml:"command"`
	Args                  []string    `yaml:"args"`
	WorkingDir            string      `yaml:"working_dir,omitempty"`
	InitializationOptions interface{} `yaml:"initialization_options,omitempty"`
}

// envOverrides are settings taken from the environment over the file
type envOverrides struct {
	LogLevel       string        `env:"LSPCLIENT_LOG_LEVEL"`
	RequestTimeout time.Duration `env:"LSPCLIENT_REQUEST_TIMEOUT"`
	TraceDB        string        `env:"LSPCLIENT_TRACE_DB"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.expandPaths(); err != nil {
		return nil, err
	}
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// expandPaths resolves ~ in path settings
func (c *Config) expandPaths() error {
	var err error
	if c.TraceDB, err = common.ExpandPath(c.TraceDB); err != nil {
		return err
	}
	for _, server := range c.Servers {
		if server == nil {
			continue
		}
		if server.WorkingDir, err = common.ExpandPath(server.WorkingDir); err != nil {
			return err
		}
	}
	return nil
}

// LoadOrDefault loads path, falling back to the default configuration when the
// file does not exist. Environment overrides are applied either way.
func LoadOrDefault(path string) (*Config, error) {
	config, err := LoadConfig(path)
	if err != nil {
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			return nil, err
		}
		common.CLILogger.Debug("No config at %s, using defaults", path)
		config = GetDefaultConfig()
	}
	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides settings from LSPCLIENT_* environment variables
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	if env.LogLevel != "" {
		c.LogLevel = env.LogLevel
	}
	if env.RequestTimeout != 0 {
		c.RequestTimeout = env.RequestTimeout
	}
	if env.TraceDB != "" {
		c.TraceDB = env.TraceDB
	}
	if err := c.expandPaths(); err != nil {
		return err
	}
	return validateConfig(c)
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefaultConfig generates a default configuration file
func GenerateDefaultConfig(path string) error {
	return SaveConfig(GetDefaultConfig(), path)
}

func validateConfig(config *Config) error {
	if config.Servers == nil {
		return fmt.Errorf("servers configuration is required")
	}
	for language, serverConfig := range config.Servers {
		if serverConfig == nil || serverConfig.Command == "" {
			return fmt.Errorf("command is required for language %s", language)
		}
		if err := security.ValidateServerCommand(serverConfig.Command, serverConfig.Args); err != nil {
			return fmt.Errorf("server for %s: %w", language, err)
		}
	}
	if config.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if _, err := common.ParseLogLevel(config.LogLevel); err != nil {
		return err
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	return filepath.Join(common.HomeDir(), "config.yaml")
}

// GetDefaultTraceDBPath returns where traces are recorded when enabled without a path
func GetDefaultTraceDBPath() string {
	return filepath.Join(common.HomeDir(), "trace.db")
}

// GetDefaultConfig returns a default configuration for common LSP servers
func GetDefaultConfig() *Config {
	return &Config{
		Servers: map[string]*ServerConfig{
			"go": {
				Command: "gopls",
				Args:    []string{"serve"},
			},
			"python": {
				Command: "pylsp",
				Args:    []string{},
			},
			"javascript": {
				Command: "typescript-language-server",
				Args:    []string{"--stdio"},
			},
			"typescript": {
				Command: "typescript-language-server",
				Args:    []string{"--stdio"},
			},
			"java": {
				Command: "jdtls",
				Args:    []string{},
			},
			"rust": {
				Command: "rust-analyzer",
				Args:    []string{},
			},
		},
		LogLevel: "info",
	}
}

// Languages lists configured languages in sorted order
func (c *Config) Languages() []string {
	languages := make([]string, 0, len(c.Servers))
	for language := range c.Servers {
		languages = append(languages, language)
	}
	sort.Strings(languages)
	return languages
}

// ClientConfig returns the launch configuration for a language
func (c *Config) ClientConfig(language string) (types.ClientConfig, error) {
	server, ok := c.Servers[language]
	if !ok {
		return types.ClientConfig{}, fmt.Errorf("no server configured for language %q (configured: %s)",
			language, strings.Join(c.Languages(), ", "))
	}
	return types.ClientConfig{
		Command:               server.Command,
		Args:                  append([]string(nil), server.Args...),
		WorkingDir:            server.WorkingDir,
		InitializationOptions: server.InitializationOptions,
	}, nil
}

// ClientConfigForPath picks the server by a document's extension
func (c *Config) ClientConfigForPath(path string) (string, types.ClientConfig, error) {
	language := constants.LanguageForPath(path)
	if language == "" {
		return "", types.ClientConfig{}, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
	cc, err := c.ClientConfig(language)
	return language, cc, err
}

// GenerateConfigForLanguages generates a Config for the specified languages only,
// using the same server commands as GetDefaultConfig
func GenerateConfigForLanguages(languages []string) *Config {
	config := GetDefaultConfig()
	defaults := config.Servers
	config.Servers = make(map[string]*ServerConfig)
	if len(languages) == 0 {
		common.CLILogger.Warn("No languages provided, returning empty config")
		return config
	}

	for _, language := range languages {
		if serverConfig, exists := defaults[language]; exists {
			config.Servers[language] = &ServerConfig{
				Command:               serverConfig.Command,
				Args:                  append([]string{}, serverConfig.Args...),
				WorkingDir:            serverConfig.WorkingDir,
				InitializationOptions: serverConfig.InitializationOptions,
			}
			common.CLILogger.Info("Added %s server configuration", language)
		} else {
			common.CLILogger.Warn("No default configuration found for language: %s", language)
		}
	}

	if len(config.Servers) == 0 {
		common.CLILogger.Warn("No valid server configurations generated")
	}
	return config
}

// DetectLanguages returns the languages of dir that have a server entry in the
// default configuration, most likely first
func DetectLanguages(dir string) ([]string, error) {
	detected, err := project.DetectLanguages(dir)
	if err != nil {
		return nil, err
	}
	defaults := GetDefaultConfig()
	languages := make([]string, 0, len(detected))
	for _, language := range detected {
		if _, ok := defaults.Servers[language]; ok {
			languages = append(languages, language)
		}
	}
	return languages, nil
}

// DetectAndGenerateConfig generates a Config for the languages present in workingDir
func DetectAndGenerateConfig(workingDir string) *Config {
	if workingDir == "" {
		var err error
		workingDir, err = os.Getwd()
		if err != nil {
			common.CLILogger.Error("Failed to get working directory: %v", err)
			return GetDefaultConfig()
		}
	}

	languages, err := DetectLanguages(workingDir)
	if err != nil {
		common.CLILogger.Error("Failed to detect languages: %v", err)
		return GetDefaultConfig()
	}
	if len(languages) == 0 {
		common.CLILogger.Warn("No languages detected, returning default config")
		return GetDefaultConfig()
	}

	common.CLILogger.Info("Detected languages: %v", languages)
	return GenerateConfigForLanguages(languages)
}
