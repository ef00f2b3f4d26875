package server

import (
	"fmt"
	"os"
	"path/filepath"
)

// Options is the recognized configuration surface of the dev server core.
// All fields are optional; the config-file loader that produces it lives
// outside the core.
type Options struct {
	Root    string
	Server  ServerOptions
	Build   BuildOptions
	Plugins []Plugin
}

type ServerOptions struct {
	Port uint16
	Open bool
}

type BuildOptions struct {
	// OutDir is recognized for config compatibility; the dev server ignores it.
	OutDir string
}

// ProjectConfig is derived once at startup and is immutable for the server's
// lifetime.
type ProjectConfig struct {
	RootDir       string
	SrcDir        string
	EntryFile     string
	IndexHtmlPath string
	Port          uint16
	Open          bool
	OutDir        string
	Plugins       []Plugin

	// CacheDir is `<root>/.react-client`, holding deps and logs.
	CacheDir string
}

// NewProjectConfig derives the immutable project config from the given
// options. It fails when the project root or the entry file is missing.
func NewProjectConfig(options Options) (*ProjectConfig, error) {
	root := options.Root
	if root == "" {
		root = "."
	}
	rootDir, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root %q: %w", root, err)
	}
	fi, err := os.Stat(rootDir)
	if err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", rootDir)
	}

	srcDir := filepath.Join(rootDir, "src")
	entryFile := ""
	for _, name := range []string{"main.tsx", "main.jsx"} {
		if fn := filepath.Join(srcDir, name); existsFile(fn) {
			entryFile = fn
			break
		}
	}
	if entryFile == "" {
		return nil, fmt.Errorf("no entry file (src/main.tsx or src/main.jsx) found in %s", rootDir)
	}

	port := options.Server.Port
	if port == 0 {
		port = DefaultPort
	}

	return &ProjectConfig{
		RootDir:       rootDir,
		SrcDir:        srcDir,
		EntryFile:     entryFile,
		IndexHtmlPath: filepath.Join(rootDir, "index.html"),
		Port:          port,
		Open:          options.Server.Open,
		OutDir:        options.Build.OutDir,
		Plugins:       options.Plugins,
		CacheDir:      filepath.Join(rootDir, cacheDirName),
	}, nil
}

// DepsDir returns the on-disk prebundle artifact directory.
func (config *ProjectConfig) DepsDir() string {
	return filepath.Join(config.CacheDir, depsDirName)
}

// LogDir returns the on-disk log directory.
func (config *ProjectConfig) LogDir() string {
	return filepath.Join(config.CacheDir, "log")
}

// ManifestPath returns the project manifest (package.json) path.
func (config *ProjectConfig) ManifestPath() string {
	return filepath.Join(config.RootDir, "package.json")
}
