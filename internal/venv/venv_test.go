package venv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVenv lays out a minimal virtual environment and returns its root.
func fakeVenv(t *testing.T, withPython bool) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, CfgFile),
		[]byte("home = /usr/bin\ninclude-system-site-packages = false\nversion = 3.12.1\n"), 0o644))

	bin := filepath.Join(root, binDirName())
	require.NoError(t, os.MkdirAll(bin, 0o755))
	if withPython {
		require.NoError(t, os.WriteFile(filepath.Join(bin, interpreterName()), []byte("#!/bin/sh\n"), 0o755))
	}
	return root
}

func TestActivate_FromRoot(t *testing.T) {
	root := fakeVenv(t, true)

	env, err := activate(root, "", []string{"PATH=/usr/bin", "PYTHONHOME=/x", "HOME=/home/u"})
	require.NoError(t, err)

	assert.Equal(t, root, env.Root)
	assert.Equal(t, filepath.Join(root, binDirName(), interpreterName()), env.Python)
	assert.Equal(t, "3.12.1", env.Version)
	assert.Equal(t, "/usr/bin", env.Cfg["home"])

	path, ok := env.Lookup("PATH")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(path, env.BinDir+string(os.PathListSeparator)), "PATH = %q", path)

	venvVar, _ := env.Lookup("VIRTUAL_ENV")
	assert.Equal(t, root, venvVar)

	_, ok = env.Lookup("PYTHONHOME")
	assert.False(t, ok, "PYTHONHOME should be cleared")

	home, _ := env.Lookup("HOME")
	assert.Equal(t, "/home/u", home)
}

func TestActivate_FromBinDir(t *testing.T) {
	root := fakeVenv(t, true)

	env, err := activate(filepath.Join(root, binDirName()), "", nil)
	require.NoError(t, err)
	assert.Equal(t, root, env.Root)

	path, _ := env.Lookup("PATH")
	assert.Equal(t, env.BinDir, path)
}

func TestActivate_NotVirtualEnv(t *testing.T) {
	_, err := activate(t.TempDir(), "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotVirtualEnv)
}

func TestActivate_MissingDirectory(t *testing.T) {
	_, err := activate(filepath.Join(t.TempDir(), "missing", "Scripts"), "", nil)
	assert.ErrorIs(t, err, ErrNotVirtualEnv)
}

func TestActivate_InterpreterMissing(t *testing.T) {
	root := fakeVenv(t, false)

	_, err := activate(root, "", nil)
	assert.ErrorIs(t, err, ErrInterpreterMissing)
}

func TestActivate_ExplicitPython(t *testing.T) {
	root := fakeVenv(t, false)
	python := filepath.Join(t.TempDir(), "python3")
	require.NoError(t, os.WriteFile(python, []byte("#!/bin/sh\n"), 0o755))

	env, err := activate(root, python, nil)
	require.NoError(t, err)
	assert.Equal(t, python, env.Python)
}
