//go:build windows
// +build windows

package process

import (
	"errors"
	"os"
	"time"
)

// terminate kills immediately. Windows can't signal other processes, so the
// shutdown/exit exchange is always followed by a kill.
func (s *Supervisor) terminate(h *Handle) {
	if h.HasExited() {
		return
	}
	if err := h.kill(); err != nil && !isExpectedKillError(err) {
		s.log.Debug("Process kill for %s returned: %v", h.Command, err)
	}

	select {
	case <-h.Exited():
	case <-time.After(2 * time.Second):
		s.log.Debug("LSP server %s process did not terminate after kill", h.Command)
	}
}

func isExpectedKillError(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
