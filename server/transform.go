package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/ristretto"
	esbuild "github.com/evanw/esbuild/pkg/api"
	logx "github.com/ije/gox/log"
	"github.com/ije/gox/utils"
)

// TransformError is a transpiler failure on a project source file.
type TransformError struct {
	Filename string
	Message  string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %s", e.Filename, e.Message)
}

// transformCache holds the last-known transformed text for project source
// files, keyed by absolute resolved path. Entries are invalidated by the
// watcher; the LRU bound keeps long dev sessions from growing without limit.
type transformCache struct {
	cache *ristretto.Cache
}

func newTransformCache() (*transformCache, error) {
	impl, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     64 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &transformCache{cache: impl}, nil
}

func (tc *transformCache) Get(filename string) ([]byte, bool) {
	if v, ok := tc.cache.Get(filename); ok {
		return v.([]byte), true
	}
	return nil, false
}

func (tc *transformCache) Set(filename string, body []byte) {
	tc.cache.Set(filename, body, int64(len(body)))
	tc.cache.Wait()
}

func (tc *transformCache) Invalidate(filename string) {
	tc.cache.Del(filename)
	tc.cache.Wait()
}

// transformPipeline serves project source files: disk read, import rewrite,
// plugin transform chain, transpilation with inline source maps.
type transformPipeline struct {
	config  *ProjectConfig
	cache   *transformCache
	plugins *pluginHost
	log     *logx.Logger
}

// resolveSourcePath maps a URL path to a filesystem path under the project
// root. When the path does not resolve as-is, source extensions are probed in
// order; the first existing file wins.
func (t *transformPipeline) resolveSourcePath(pathname string) (string, bool) {
	filename := filepath.Join(t.config.RootDir, filepath.FromSlash(utils.CleanPath(pathname)))
	if existsFile(filename) {
		return filename, true
	}
	for _, ext := range moduleExts {
		if fn := filename + ext; existsFile(fn) {
			return fn, true
		}
	}
	return "", false
}

// Load returns the transformed output for the given resolved source file,
// from the cache when possible.
func (t *transformPipeline) Load(filename string) ([]byte, error) {
	if body, ok := t.cache.Get(filename); ok {
		return body, nil
	}
	body, err := t.transform(filename)
	if err != nil {
		return nil, err
	}
	t.cache.Set(filename, body)
	return body, nil
}

func (t *transformPipeline) transform(filename string) ([]byte, error) {
	source, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	code := rewriteBareImports(string(source))
	code = t.plugins.applyTransform(code, filename)

	ext := filepath.Ext(filename)
	if ext == ".css" {
		// stylesheets become a ready-to-run style-installing module; there
		// is nothing left for the transpiler to do
		urlPath, err := filepath.Rel(t.config.RootDir, filename)
		if err != nil {
			urlPath = filepath.Base(filename)
		}
		return []byte(cssModuleSnippet(code, "/"+filepath.ToSlash(urlPath))), nil
	}

	ret := esbuild.Transform(code, esbuild.TransformOptions{
		Loader:     loaderByExtension(ext),
		Target:     esbuild.ES2020,
		Sourcemap:  esbuild.SourceMapInline,
		Sourcefile: filename,
	})
	if len(ret.Errors) > 0 {
		msg := ret.Errors[0]
		text := msg.Text
		if msg.Location != nil {
			text = fmt.Sprintf("%s (%s:%d:%d)", msg.Text, msg.Location.File, msg.Location.Line, msg.Location.Column)
		}
		return nil, &TransformError{Filename: filename, Message: text}
	}
	return ret.Code, nil
}

// Invalidate drops the transform record for the given path.
func (t *transformPipeline) Invalidate(filename string) {
	t.cache.Invalidate(filename)
}

func loaderByExtension(ext string) esbuild.Loader {
	switch ext {
	case ".ts":
		return esbuild.LoaderTS
	case ".tsx":
		return esbuild.LoaderTSX
	case ".jsx":
		return esbuild.LoaderJSX
	default:
		return esbuild.LoaderJS
	}
}

// cssModuleSnippet wraps a stylesheet in a small runtime that installs a
// <style> element holding the CSS literal. Re-importing the module after an
// edit swaps the text in place, so stylesheets hot-reload without a page
// reload.
func cssModuleSnippet(css string, urlPath string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "const css = %s;\n", string(utils.MustEncodeJSON(css)))
	fmt.Fprintf(&sb, "let styleEl = document.querySelector('style[data-source=\"%s\"]');\n", urlPath)
	sb.WriteString("if (!styleEl) {\n")
	sb.WriteString("  styleEl = document.createElement('style');\n")
	fmt.Fprintf(&sb, "  styleEl.setAttribute('data-source', '%s');\n", urlPath)
	sb.WriteString("  document.head.appendChild(styleEl);\n")
	sb.WriteString("}\n")
	sb.WriteString("styleEl.textContent = css;\n")
	sb.WriteString("export default css;\n")
	return sb.String()
}
