package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDirsXDG(t *testing.T) {
	root := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(root, "cache"))

	d, err := resolveDirs("", "", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "data", appName), d.data)
	assert.Equal(t, filepath.Join(root, "config", appName), d.config)
	assert.Equal(t, filepath.Join(root, "cache", appName), d.cache)
	for _, dir := range []string{d.data, d.config, d.cache} {
		fi, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
	}
}

func TestResolveDirsFlagsWin(t *testing.T) {
	root := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "xdg"))

	d, err := resolveDirs(filepath.Join(root, "mine"), filepath.Join(root, "conf"), filepath.Join(root, "c"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "mine"), d.data)
	assert.Equal(t, filepath.Join(root, "conf"), d.config)
	assert.Equal(t, filepath.Join(root, "c"), d.cache)
}

func TestXDGHomeFallback(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv("HOME", "/home/someone")
	assert.Equal(t, filepath.Join("/home/someone", ".cache"), xdgCacheDir())
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	assert.False(t, fileExists(path))
	require.NoError(t, os.WriteFile(path, []byte("addr: :1\n"), 0o644))
	assert.True(t, fileExists(path))
	assert.False(t, fileExists(dir))
}
