//go:build !windows
// +build !windows

package process

import (
	"errors"
	"os"
	"syscall"
	"time"
)

// terminate waits for a graceful exit, then force kills
func (s *Supervisor) terminate(h *Handle) {
	select {
	case <-h.Exited():
		return
	case <-time.After(s.shutdownTimeout):
	}

	// Debug level: the stop was intentional
	s.log.Debug("LSP server %s did not exit within %v, force killing", h.Command, s.shutdownTimeout)
	if err := h.kill(); err != nil && !isExpectedKillError(err) {
		s.log.Debug("Failed to kill LSP server %s: %v", h.Command, err)
	}
	<-h.Exited()
}

// isExpectedKillError reports errors meaning the process was already gone
func isExpectedKillError(err error) bool {
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, syscall.ECHILD) || errors.Is(err, os.ErrProcessDone) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESRCH || errno == syscall.ECHILD
	}
	return false
}
