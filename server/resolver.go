package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ije/gox/utils"

	"react-client.dev/internal/npm"
)

// ModuleNotFoundError is returned when a bare specifier can not be mapped to
// a file in the package store.
type ModuleNotFoundError struct {
	Specifier string
	Reason    string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("cannot resolve module %q: %s", e.Specifier, e.Reason)
}

// Resolver maps bare import specifiers to absolute files inside the package
// store, honoring the package manifest's export map, conditional exports and
// fallback entry fields.
type Resolver struct {
	rootDir   string
	manifests sync.Map // absolute package.json path -> *npm.PackageJSON
}

func NewResolver(rootDir string) *Resolver {
	return &Resolver{rootDir: rootDir}
}

// splitBareSpecifier splits a bare specifier into the package root (the first
// segment, or the first two for scoped packages) and an optional subpath.
func splitBareSpecifier(specifier string) (pkgRoot string, subpath string) {
	if strings.HasPrefix(specifier, "@") {
		scope, rest := utils.SplitByFirstByte(specifier, '/')
		name, sub := utils.SplitByFirstByte(rest, '/')
		return scope + "/" + name, sub
	}
	return utils.SplitByFirstByte(specifier, '/')
}

// searchNodeModules looks up the given node_modules-relative path, walking up
// from the project root the way the host runtime's resolution does.
func (r *Resolver) searchNodeModules(rel string) (string, bool) {
	dir := r.rootDir
	for {
		p := filepath.Join(dir, "node_modules", filepath.FromSlash(rel))
		if existsFile(p) || existsDir(p) {
			return p, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// loadManifest parses a package.json once and caches it by absolute path for
// the process lifetime.
func (r *Resolver) loadManifest(filename string) (*npm.PackageJSON, error) {
	if v, ok := r.manifests.Load(filename); ok {
		return v.(*npm.PackageJSON), nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var pkgJson npm.PackageJSON
	if err := json.Unmarshal(data, &pkgJson); err != nil {
		return nil, err
	}
	r.manifests.Store(filename, &pkgJson)
	return &pkgJson, nil
}

// Resolve maps a bare specifier to an absolute filesystem path. The returned
// path always exists and is a regular file.
func (r *Resolver) Resolve(specifier string) (string, error) {
	if !isBareSpecifier(specifier) {
		return "", &ModuleNotFoundError{specifier, "not a bare specifier"}
	}
	pkgRoot, subpath := splitBareSpecifier(specifier)
	if !npm.ValidatePackageName(pkgRoot) {
		return "", &ModuleNotFoundError{specifier, "invalid package name"}
	}

	// 1. direct resolution against the package search paths
	if p, ok := r.searchNodeModules(specifier); ok && existsFile(p) {
		return p, nil
	}

	// 2. package manifest lookup
	pkgDir, ok := r.searchNodeModules(pkgRoot)
	if !ok || !existsDir(pkgDir) {
		return "", &ModuleNotFoundError{specifier, "package not installed"}
	}
	manifestPath := filepath.Join(pkgDir, "package.json")
	if !existsFile(manifestPath) {
		return "", &ModuleNotFoundError{specifier, "package.json not found"}
	}
	pkgJson, err := r.loadManifest(manifestPath)
	if err != nil {
		return "", &ModuleNotFoundError{specifier, "invalid package.json: " + err.Error()}
	}

	// 3. export map
	if pkgJson.Exports.Len() > 0 {
		var lookupKeys []string
		if subpath != "" {
			lookupKeys = []string{"./" + subpath, "./" + subpath + ".js", "./" + subpath + ".mjs"}
		} else {
			lookupKeys = []string{".", "./index.js", "./index.mjs"}
		}
		for _, key := range lookupKeys {
			if v, ok := pkgJson.Exports.Get(key); ok {
				if target, ok := resolveExportValue(v); ok {
					if p := filepath.Join(pkgDir, filepath.FromSlash(target)); existsFile(p) {
						return p, nil
					}
				}
			}
		}
	}

	// 4. subpath against the manifest's directory
	if subpath != "" {
		if p, ok := r.searchNodeModules(pkgRoot + "/" + subpath); ok && existsFile(p) {
			return p, nil
		}
		candidates := []string{
			subpath,
			subpath + ".js",
			subpath + ".mjs",
			subpath + "/index.js",
			subpath + "/index.mjs",
		}
		for _, candidate := range candidates {
			if p := filepath.Join(pkgDir, filepath.FromSlash(candidate)); existsFile(p) {
				return p, nil
			}
		}
		return "", &ModuleNotFoundError{specifier, "no matching subpath"}
	}

	// 5. manifest entry fields: module, browser, main
	for _, entry := range []string{pkgJson.Module, pkgJson.Browser["."], pkgJson.Main} {
		if entry == "" {
			continue
		}
		if p := filepath.Join(pkgDir, filepath.FromSlash(entry)); existsFile(p) {
			return p, nil
		}
	}

	return "", &ModuleNotFoundError{specifier, "no entry point"}
}

// resolveExportValue unpacks an export map value: a plain string is used
// directly; a conditions object prefers `import`, then `default`, then any
// remaining string value in key order.
func resolveExportValue(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case npm.JSONObject:
		for _, condition := range []string{"import", "default"} {
			if cv, ok := v.Get(condition); ok {
				if target, ok := resolveExportValue(cv); ok {
					return target, true
				}
			}
		}
		for _, key := range v.Keys() {
			if key == "import" || key == "default" {
				continue
			}
			if cv, ok := v.Get(key); ok {
				if s, isStr := cv.(string); isStr {
					return s, true
				}
			}
		}
	}
	return "", false
}
