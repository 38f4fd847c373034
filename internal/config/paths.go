package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading ~ with the user's home directory. Paths
// without one, and ~user forms, are returned unchanged.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return filepath.Join(home, path[2:])
	}
	return path
}

// expandPaths applies [ExpandHome] to every filesystem path setting.
func (c *Config) expandPaths() {
	for _, p := range []*string{&c.DataDir, &c.Cache.Path, &c.Media.YtDlpPath, &c.Media.CookiesFile} {
		*p = ExpandHome(*p)
	}
}
