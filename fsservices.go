package main

import (
	"os"
	"path/filepath"
)

const appName = "pinmap"

// dirs are the application directories resolved at startup.
type dirs struct {
	data   string
	config string
	cache  string
}

// resolveDirs applies flag overrides over the XDG defaults and creates
// every directory.
func resolveDirs(dataFlag, configFlag, cacheFlag string) (dirs, error) {
	d := dirs{
		data:   pick(dataFlag, filepath.Join(xdgDataDir(), appName)),
		config: pick(configFlag, filepath.Join(xdgConfigDir(), appName)),
		cache:  pick(cacheFlag, filepath.Join(xdgCacheDir(), appName)),
	}
	for _, dir := range []string{d.data, d.config, d.cache} {
		if err := ensureDir(dir); err != nil {
			return d, err
		}
	}
	return d, nil
}

func pick(flagValue, fallback string) string {
	if flagValue != "" {
		return flagValue
	}
	return fallback
}

// fileExists reports whether the given path exists and is a file (not a directory).
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// xdgConfigDir returns $XDG_CONFIG_HOME or falls back to $HOME/.config.
func xdgConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// xdgCacheDir returns $XDG_CACHE_HOME or falls back to $HOME/.cache.
func xdgCacheDir() string {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

// xdgDataDir returns $XDG_DATA_HOME or falls back to $HOME/.local/share.
func xdgDataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func xdgDir(env, homeRel string) string {
	if d := os.Getenv(env); d != "" {
		return d
	}
	home := os.Getenv("HOME")
	if home == "" {
		// last resort: current working directory
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, homeRel)
	}
	return filepath.Join(home, homeRel)
}

// ensureDir creates the directory and any necessary parents if it doesn't exist.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
