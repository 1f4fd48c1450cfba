package common

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// executableNames lists the file names a command may have on this platform
func executableNames(name string) []string {
	ext := filepath.Ext(name)
	if runtime.GOOS == "windows" {
		if ext == ".cmd" || ext == ".bat" || ext == ".exe" {
			return []string{name}
		}
		return []string{name, name + ".cmd", name + ".bat", name + ".exe"}
	}
	if ext == "" {
		return []string{name, name + ".sh"}
	}
	return []string{name}
}

// FindExecutable resolves name on PATH first, then under installRoot and
// installRoot/bin. It returns "" when nothing executable is found.
func FindExecutable(installRoot, name string) string {
	candidates := executableNames(name)
	for _, c := range candidates {
		if p, err := exec.LookPath(c); err == nil {
			return p
		}
	}
	if installRoot == "" {
		return ""
	}
	for _, dir := range []string{installRoot, filepath.Join(installRoot, "bin")} {
		for _, c := range candidates {
			p := filepath.Join(dir, c)
			info, err := os.Stat(p)
			if err != nil || info.IsDir() {
				continue
			}
			if runtime.GOOS == "windows" || info.Mode()&0111 != 0 {
				return p
			}
		}
	}
	return ""
}
