package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"lspclient/src/config"
	"lspclient/src/internal/project"
	"lspclient/src/server"
	"lspclient/src/server/editor"
	"lspclient/src/server/pending"
	"lspclient/src/server/process"
	"lspclient/src/server/trace"
)

const defaultWaitTimeout = 30 * time.Second

// launcher replaces process startup in tests
var launcher process.Launcher

// client is a started and initialized session with its workspace
type client struct {
	cfg      *config.Config
	language string
	root     string
	ws       *editor.Workspace
	session  *server.Session
	store    *trace.Store
	cancel   context.CancelFunc
}

// startClient launches the server for language and waits for initialize to
// finish. The workspace root is the configured working directory, else the
// project containing file, else the current directory.
func startClient(cfg *config.Config, language, file string, out io.Writer) (*client, error) {
	cc, err := cfg.ClientConfig(language)
	if err != nil {
		return nil, err
	}
	root := cc.WorkingDir
	if root == "" && file != "" {
		root = project.FindRoot(file)
	}
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	root, _ = filepath.Abs(root)
	cc.WorkingDir = root

	c := &client{cfg: cfg, language: language, root: root, ws: editor.NewWorkspace(out)}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.ws.Run(ctx)

	opts := []server.Option{server.WithRequestTimeout(cfg.RequestTimeout)}
	if launcher != nil {
		opts = append(opts, server.WithLauncher(launcher))
	}
	if cfg.TraceDB != "" {
		store, err := trace.Open(cfg.TraceDB)
		if err != nil {
			cancel()
			return nil, err
		}
		c.store = store
		opts = append(opts, server.WithTrace(store))
	}
	if cfg.Watch {
		opts = append(opts, server.WithWatch(root))
	}
	c.session = server.NewSession(cc, c.ws, opts...)

	if err := c.session.Start(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.wait(c.session.Initialize(root, nil)); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize %s: %w", cc.Command, err)
	}
	return c, nil
}

// wait blocks until call completes and its editor effects have run
func (c *client) wait(call *pending.Call) error {
	if call == nil {
		return fmt.Errorf("language server is not running")
	}
	timeout := defaultWaitTimeout
	if c.cfg.RequestTimeout > 0 {
		timeout = c.cfg.RequestTimeout + time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := call.Wait(ctx); err != nil {
		return err
	}
	return c.ws.Sync(ctx)
}

// open makes path the active document and tells the server about it
func (c *client) open(path string) error {
	if err := c.ws.Open(path); err != nil {
		return err
	}
	return c.session.DidOpen(c.ws.CurrentPath(), "")
}

// save writes modified buffers and notifies the server
func (c *client) save() ([]string, error) {
	var saved []string
	for _, path := range c.ws.Modified() {
		if err := c.ws.Save(path); err != nil {
			return saved, err
		}
		if err := c.session.DidSave(path); err != nil {
			return saved, err
		}
		saved = append(saved, path)
	}
	return saved, nil
}

// Close shuts the server down and releases the workspace and trace store
func (c *client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.session.Close(ctx)
	c.cancel()
	if c.store != nil {
		if cerr := c.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// clientFor picks the server from the file's language unless one is given
func clientFor(cfg *config.Config, language, file string, out io.Writer) (*client, error) {
	if language == "" {
		var err error
		language, _, err = cfg.ClientConfigForPath(file)
		if err != nil {
			return nil, err
		}
	}
	return startClient(cfg, language, file, out)
}
