package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"lspclient/src/config"
	"lspclient/src/internal/common"
	versionpkg "lspclient/src/internal/version"
	"lspclient/src/server"
	"lspclient/src/server/editor"
	"lspclient/src/server/trace"
)

// CLI Constants
const (
	CmdStart      = "start"
	CmdHover      = "hover"
	CmdDefinition = "definition"
	CmdReferences = "references"
	CmdRename     = "rename"
	CmdSymbols    = "symbols"
	CmdConfig     = "config"
	CmdTrace      = "trace"
	CmdVersion    = "version"
	FlagConfig    = "config"
	FlagLanguage  = "language"
	FlagLogLevel  = "log-level"
	FlagVerbose   = "verbose"
	FlagForce     = "force"
	FlagDetect    = "detect"
	FlagWrite     = "write"
	FlagFull      = "full"
)

// CLI Variables
var (
	configPath  string
	logLevel    string
	language    string
	verbose     bool
	force       bool
	detect      bool
	writeEdits  bool
	includeDecl bool
	fullPayload bool
)

var rootCmd = &cobra.Command{
	Use:   "lspclient",
	Short: "lspclient - a command-line Language Server Protocol client",
	Long: `lspclient starts a language server as a subprocess and talks to it over
JSON-RPC on the server's stdin and stdout.

QUICK START:
  lspclient start main.go                  # Interactive session on main.go
  lspclient hover main.go 10 4             # One-shot hover at line 10, column 4
  lspclient config init                    # Write ~/.lspclient/config.yaml

Positions are one-based lines and columns counted in characters.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	startCmd = &cobra.Command{
		Use:   CmdStart + " [file]",
		Short: "Start an interactive session",
		Long: `Start the language server and read commands from stdin.

The server is chosen from the file's extension, or with --language when no file
is given. Type 'help' in the session for the list of commands.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runStartCmd,
	}

	hoverCmd = &cobra.Command{
		Use:   CmdHover + " <file> <line> <col>",
		Short: "Show hover information",
		Args:  cobra.ExactArgs(3),
		RunE:  runHoverCmd,
	}

	definitionCmd = &cobra.Command{
		Use:   CmdDefinition + " <file> <line> <col>",
		Short: "Print the definition location of a symbol",
		Args:  cobra.ExactArgs(3),
		RunE:  runDefinitionCmd,
	}

	referencesCmd = &cobra.Command{
		Use:   CmdReferences + " <file> <line> <col>",
		Short: "List references to a symbol",
		Args:  cobra.ExactArgs(3),
		RunE:  runReferencesCmd,
	}

	renameCmd = &cobra.Command{
		Use:   CmdRename + " <file> <line> <col> <new-name>",
		Short: "Rename a symbol",
		Long: `Rename the symbol at a position. Edits are printed; pass --write to save the
changed files.`,
		Args: cobra.ExactArgs(4),
		RunE: runRenameCmd,
	}

	symbolsCmd = &cobra.Command{
		Use:   CmdSymbols + " <file>",
		Short: "List the symbols of a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSymbolsCmd,
	}

	versionCmd = &cobra.Command{
		Use:   CmdVersion,
		Short: "Show version information",
		RunE:  runVersionCmd,
	}

	configCmd = &cobra.Command{
		Use:   CmdConfig,
		Short: "Manage configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	traceCmd = &cobra.Command{
		Use:   CmdTrace,
		Short: "Inspect recorded JSON-RPC traffic",
		Long: `Sessions record every message when trace_db is set in the configuration or
LSPCLIENT_TRACE_DB is set in the environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Config subcommands
var (
	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a configuration file with servers for common languages, or with --detect
only for the languages found under the current directory.`,
		RunE: runConfigInitCmd,
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE:  runConfigShowCmd,
	}
)

// Trace subcommands
var (
	traceListCmd = &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions",
		RunE:  runTraceListCmd,
	}

	traceDumpCmd = &cobra.Command{
		Use:   "dump <session-id>",
		Short: "Print the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runTraceDumpCmd,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, FlagConfig, "c", "", "Configuration file path (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, FlagLogLevel, "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVarP(&language, FlagLanguage, "l", "", "Language server to use instead of detecting from the file")

	referencesCmd.Flags().BoolVar(&includeDecl, "include-declaration", true, "Include the declaration itself")
	renameCmd.Flags().BoolVarP(&writeEdits, FlagWrite, "w", false, "Save the renamed files")
	versionCmd.Flags().BoolVarP(&verbose, FlagVerbose, "v", false, "Show detailed version information")
	configInitCmd.Flags().BoolVarP(&force, FlagForce, "f", false, "Overwrite an existing file")
	configInitCmd.Flags().BoolVar(&detect, FlagDetect, false, "Only configure languages found in the current directory")
	traceDumpCmd.Flags().BoolVar(&fullPayload, FlagFull, false, "Print payloads without truncation")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	traceCmd.AddCommand(traceListCmd)
	traceCmd.AddCommand(traceDumpCmd)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(hoverCmd)
	rootCmd.AddCommand(definitionCmd)
	rootCmd.AddCommand(referencesCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(versionCmd)
}

func runStartCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	file := ""
	if len(args) == 1 {
		file = args[0]
	}
	if file == "" && language == "" {
		return fmt.Errorf("give a file or --%s", FlagLanguage)
	}

	out := cmd.OutOrStdout()
	c, err := clientFor(cfg, language, file, out)
	if err != nil {
		return err
	}
	defer c.Close()

	if file != "" {
		if err := c.open(file); err != nil {
			return err
		}
	}
	common.CLILogger.Info("Session %s started for %s", c.session.ID(), c.language)
	r := &repl{c: c, out: out, prompt: cmd.InOrStdin() == os.Stdin && stdinIsTerminal()}
	return r.run(cmd.InOrStdin())
}

// oneShot opens file, runs op against the active document and shuts the server down
func oneShot(cmd *cobra.Command, file string, op func(c *client) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	c, err := clientFor(cfg, language, file, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.open(file); err != nil {
		return err
	}
	return op(c)
}

func parseTarget(args []string) (server.Target, error) {
	pos, err := parsePosition(args[1:3])
	if err != nil {
		return server.Target{}, err
	}
	// oneShot makes the file active, so only the position is needed
	return server.Target{Pos: pos}, nil
}

func runHoverCmd(cmd *cobra.Command, args []string) error {
	t, err := parseTarget(args)
	if err != nil {
		return err
	}
	return oneShot(cmd, args[0], func(c *client) error {
		found := false
		if err := c.wait(c.session.Hover(t, func(text string) { found = text != "" })); err != nil {
			return err
		}
		if !found {
			fmt.Fprintln(cmd.OutOrStdout(), "no hover information")
		}
		return nil
	})
}

func runDefinitionCmd(cmd *cobra.Command, args []string) error {
	t, err := parseTarget(args)
	if err != nil {
		return err
	}
	return oneShot(cmd, args[0], func(c *client) error {
		return c.wait(c.session.Definition(t, func(loc editor.Location) {
			fmt.Fprintln(cmd.OutOrStdout(), loc)
		}))
	})
}

func runReferencesCmd(cmd *cobra.Command, args []string) error {
	t, err := parseTarget(args)
	if err != nil {
		return err
	}
	return oneShot(cmd, args[0], func(c *client) error {
		return c.wait(c.session.References(t, includeDecl, nil))
	})
}

func runRenameCmd(cmd *cobra.Command, args []string) error {
	t, err := parseTarget(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	return oneShot(cmd, args[0], func(c *client) error {
		err := c.wait(c.session.Rename(t, args[3], func(edits []server.AppliedEdit) {
			for _, e := range edits {
				fmt.Fprintf(out, "%s:%s-%s %s\n", e.Path, e.Start, e.End, strconv.Quote(e.NewText))
			}
		}))
		if err != nil || !writeEdits {
			return err
		}
		saved, err := c.save()
		for _, path := range saved {
			fmt.Fprintf(out, "saved %s\n", path)
		}
		return err
	})
}

func runSymbolsCmd(cmd *cobra.Command, args []string) error {
	return oneShot(cmd, args[0], func(c *client) error {
		return c.wait(c.session.DocumentSymbols("", nil))
	})
}

func runVersionCmd(cmd *cobra.Command, args []string) error {
	if verbose {
		fmt.Fprintln(cmd.OutOrStdout(), versionpkg.GetFullVersionInfo())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "lspclient %s\n", versionpkg.GetVersion())
	return nil
}

func runConfigInitCmd(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --%s to overwrite)", path, FlagForce)
	}

	cfg := config.GetDefaultConfig()
	if detect {
		cfg = config.DetectAndGenerateConfig("")
	}
	if err := config.SaveConfig(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}

func runConfigShowCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, lang := range cfg.Languages() {
		sc := cfg.Servers[lang]
		fmt.Fprintf(out, "%-12s %s %v\n", lang, sc.Command, sc.Args)
	}
	if cfg.RequestTimeout > 0 {
		fmt.Fprintf(out, "request_timeout: %v\n", cfg.RequestTimeout)
	}
	if cfg.TraceDB != "" {
		fmt.Fprintf(out, "trace_db: %s\n", cfg.TraceDB)
	}
	fmt.Fprintf(out, "watch: %v\nlog_level: %s\n", cfg.Watch, cfg.LogLevel)
	return nil
}

func openTraceStore() (*trace.Store, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	path := cfg.TraceDB
	if path == "" {
		path = config.GetDefaultTraceDBPath()
	}
	return trace.Open(path)
}

func runTraceListCmd(cmd *cobra.Command, args []string) error {
	store, err := openTraceStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.Sessions()
	if err != nil {
		return err
	}
	printTraceSessions(cmd.OutOrStdout(), sessions)
	return nil
}

func runTraceDumpCmd(cmd *cobra.Command, args []string) error {
	store, err := openTraceStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Iterate(args[0], func(e trace.Entry) error {
		printTraceEntry(cmd.OutOrStdout(), e, fullPayload)
		return nil
	})
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
