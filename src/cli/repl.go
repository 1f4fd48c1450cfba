package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	"lspclient/src/internal/common"
	"lspclient/src/server"
	"lspclient/src/server/editor"
)

const replPrompt = "lspclient> "

const replHelp = `commands:
  open <file>               make file active and send didOpen
  goto <line> <col>         move the cursor
  hover [line col]          show hover information
  def [line col]            jump to the definition
  refs [line col]           list references
  rename <name> [line col]  rename the symbol and apply the edits
  symbols                   list symbols of the active file
  diag                      show diagnostics of the active file
  save                      write modified files
  caps                      list server capabilities
  pending                   count requests awaiting a response
  quit                      shut the server down and exit`

// stdinIsTerminal reports whether the prompt should be shown
func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// repl reads commands line by line and runs them against c
type repl struct {
	c      *client
	out    io.Writer
	prompt bool
}

func (r *repl) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		if r.prompt {
			fmt.Fprint(r.out, replPrompt)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := r.exec(fields[0], fields[1:]); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			common.CLILogger.Debug("Command %q failed: %v", line, err)
		}
	}
}

func (r *repl) exec(cmd string, args []string) error {
	s := r.c.session
	switch cmd {
	case "help":
		fmt.Fprintln(r.out, replHelp)
		return nil
	case "open":
		if len(args) != 1 {
			return fmt.Errorf("usage: open <file>")
		}
		return r.c.open(args[0])
	case "goto":
		pos, err := parsePosition(args)
		if err != nil || pos.IsZero() {
			return fmt.Errorf("usage: goto <line> <col>")
		}
		r.c.ws.SetCursor(pos)
		return nil
	case "hover":
		t, err := r.target(args)
		if err != nil {
			return err
		}
		return r.c.wait(s.Hover(t, nil))
	case "def":
		t, err := r.target(args)
		if err != nil {
			return err
		}
		return r.c.wait(s.Definition(t, func(loc editor.Location) {
			fmt.Fprintln(r.out, loc)
		}))
	case "refs":
		t, err := r.target(args)
		if err != nil {
			return err
		}
		return r.c.wait(s.References(t, true, nil))
	case "rename":
		if len(args) < 1 {
			return fmt.Errorf("usage: rename <name> [line col]")
		}
		t, err := r.target(args[1:])
		if err != nil {
			return err
		}
		return r.c.wait(s.Rename(t, args[0], nil))
	case "symbols":
		return r.c.wait(s.DocumentSymbols("", nil))
	case "diag":
		path := r.c.ws.CurrentPath()
		if len(args) == 1 {
			path = args[0]
		}
		printDiagnostics(r.out, s.Diagnostics(path))
		return nil
	case "save":
		saved, err := r.c.save()
		for _, path := range saved {
			fmt.Fprintf(r.out, "saved %s\n", path)
		}
		return err
	case "caps":
		printCapabilities(r.out, s.Capabilities())
		return nil
	case "pending":
		fmt.Fprintf(r.out, "%d pending\n", s.Pending())
		return nil
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

// target uses an explicit position when given, else the cursor
func (r *repl) target(args []string) (server.Target, error) {
	pos, err := parsePosition(args)
	if err != nil {
		return server.Target{}, err
	}
	if r.c.ws.CurrentPath() == "" {
		return server.Target{}, fmt.Errorf("no file open")
	}
	return server.Target{Pos: pos}, nil
}

// parsePosition reads an optional "line col" pair
func parsePosition(args []string) (editor.Position, error) {
	switch len(args) {
	case 0:
		return editor.Position{}, nil
	case 2:
		line, err := strconv.Atoi(args[0])
		if err != nil || line < 1 {
			return editor.Position{}, fmt.Errorf("invalid line %q", args[0])
		}
		col, err := strconv.Atoi(args[1])
		if err != nil || col < 1 {
			return editor.Position{}, fmt.Errorf("invalid column %q", args[1])
		}
		return editor.Position{Line: line, Column: col}, nil
	}
	return editor.Position{}, fmt.Errorf("expected <line> <col>")
}
