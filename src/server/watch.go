package server

import (
	"lspclient/src/internal/constants"
	"lspclient/src/server/watcher"
)

func (s *Session) startWatcher() {
	if s.watchRoot == "" {
		return
	}
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watch != nil {
		return
	}

	fw, err := watcher.NewFileWatcher(constants.GetAllSupportedExtensions(), s.filesChanged, s.log)
	if err != nil {
		s.log.Warn("File watching disabled: %v", err)
		return
	}
	if s.watchDelay > 0 {
		fw.SetDebounceDelay(s.watchDelay)
	}
	if err := fw.AddPath(s.watchRoot); err != nil {
		s.log.Warn("File watching disabled for %s: %v", s.watchRoot, err)
		fw.Stop()
		return
	}
	fw.Start()
	s.watch = fw
}

func (s *Session) stopWatcher() {
	s.watchMu.Lock()
	fw := s.watch
	s.watch = nil
	s.watchMu.Unlock()
	if fw != nil {
		if err := fw.Stop(); err != nil {
			s.log.Debug("Stopping file watcher: %v", err)
		}
	}
}

// filesChanged resynchronizes open documents that changed on disk. Documents
// with unsaved edits in the editor are left alone.
func (s *Session) filesChanged(events []watcher.Event) {
	s.effect(func() {
		for _, e := range events {
			if !s.docs.IsOpen(e.Path) {
				continue
			}
			switch e.Op {
			case watcher.OpRemove, watcher.OpRename:
				if err := s.DidClose(e.Path); err != nil {
					s.log.Warn("Failed to close removed document %s: %v", e.Path, err)
				}
			default:
				if !s.editor.Reload(e.Path) {
					s.log.Debug("Keeping unsaved changes to %s", e.Path)
					continue
				}
				text, err := s.editor.Text(e.Path)
				if err != nil {
					s.log.Warn("Failed to reread %s: %v", e.Path, err)
					continue
				}
				if err := s.DidChange(e.Path, text); err != nil {
					s.log.Warn("Failed to sync %s: %v", e.Path, err)
				}
			}
		}
	})
}
