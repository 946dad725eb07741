// Package venv activates a Python virtual environment for child processes.
//
// Activation does not touch the current process. It computes the environment
// a shell would have after sourcing the venv's activate script (VIRTUAL_ENV
// set, the binary directory first on PATH, PYTHONHOME cleared) so commands
// started with it resolve the venv's interpreter and packages.
package venv

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// CfgFile marks the root of a virtual environment.
const CfgFile = "pyvenv.cfg"

var (
	// ErrNotVirtualEnv is returned when no pyvenv.cfg is found in the
	// directory or its parent.
	ErrNotVirtualEnv = errors.New("not a virtual environment")
	// ErrInterpreterMissing is returned when the environment has no python
	// executable.
	ErrInterpreterMissing = errors.New("python interpreter not found")
)

// Env is an activated virtual environment.
type Env struct {
	Root    string            // environment root (holds pyvenv.cfg)
	BinDir  string            // Scripts on Windows, bin elsewhere
	Python  string            // interpreter used to run scripts
	Version string            // from pyvenv.cfg, may be empty
	Cfg     map[string]string // parsed pyvenv.cfg
	Vars    []string          // full child environment, KEY=VALUE
}

// Activate resolves the virtual environment at dir. dir may be the
// environment root or its binary directory. A non-empty python overrides the
// environment's own interpreter but must exist.
func Activate(dir, python string) (*Env, error) {
	return activate(dir, python, os.Environ())
}

func activate(dir, python string, base []string) (*Env, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}

	root, err := findRoot(abs)
	if err != nil {
		return nil, err
	}

	cfg, err := readCfg(filepath.Join(root, CfgFile))
	if err != nil {
		return nil, err
	}

	binDir := filepath.Join(root, binDirName())
	if python == "" {
		python = filepath.Join(binDir, interpreterName())
	}
	if info, err := os.Stat(python); err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInterpreterMissing, python)
	}

	return &Env{
		Root:    root,
		BinDir:  binDir,
		Python:  python,
		Version: cfg["version"],
		Cfg:     cfg,
		Vars:    activatedEnv(base, root, binDir, cfg["prompt"]),
	}, nil
}

// findRoot returns dir or its parent, whichever holds pyvenv.cfg.
func findRoot(dir string) (string, error) {
	for _, candidate := range []string{dir, filepath.Dir(dir)} {
		if _, err := os.Stat(filepath.Join(candidate, CfgFile)); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no %s in %s or its parent", ErrNotVirtualEnv, CfgFile, dir)
}

// readCfg parses the "key = value" lines of pyvenv.cfg.
func readCfg(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", CfgFile, err)
	}
	defer func() { _ = f.Close() }()

	cfg := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		cfg[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", CfgFile, err)
	}
	return cfg, nil
}

// activatedEnv mirrors what the activate scripts export.
func activatedEnv(base []string, root, binDir, prompt string) []string {
	if prompt == "" {
		prompt = filepath.Base(root)
	}

	var path string
	out := make([]string, 0, len(base)+3)
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch {
		case strings.EqualFold(key, "PATH"):
			path = value
		case strings.EqualFold(key, "PYTHONHOME"),
			strings.EqualFold(key, "VIRTUAL_ENV"),
			strings.EqualFold(key, "VIRTUAL_ENV_PROMPT"):
		default:
			out = append(out, kv)
		}
	}

	if path == "" {
		path = binDir
	} else {
		path = binDir + string(os.PathListSeparator) + path
	}

	return append(out,
		"PATH="+path,
		"VIRTUAL_ENV="+root,
		"VIRTUAL_ENV_PROMPT="+prompt,
	)
}

func binDirName() string {
	if runtime.GOOS == "windows" {
		return "Scripts"
	}
	return "bin"
}

func interpreterName() string {
	if runtime.GOOS == "windows" {
		return "python.exe"
	}
	return "python"
}

// Lookup returns the value of key in the activated environment.
func (e *Env) Lookup(key string) (string, bool) {
	for _, kv := range e.Vars {
		k, v, _ := strings.Cut(kv, "=")
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
