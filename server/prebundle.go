package server

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/ije/esbuild-internal/xxhash"
	logx "github.com/ije/gox/log"
	"github.com/ije/gox/set"
	syncx "github.com/ije/gox/sync"
	"golang.org/x/sync/errgroup"
)

// BundleError is a prebundle failure for a specific dependency.
type BundleError struct {
	Specifier string
	Reason    string
}

func (e *BundleError) Error() string {
	return fmt.Sprintf("bundle %q: %s", e.Specifier, e.Reason)
}

// prebundleMeta is the on-disk record used for wholesale invalidation of the
// dep cache; the hash digests the sorted direct dependency set.
type prebundleMeta struct {
	Hash string `json:"hash"`
}

// PrebundleCache converts third-party packages into self-contained
// browser-ESM artifacts on disk and keeps the set in sync with the project
// manifest.
type PrebundleCache struct {
	config   *ProjectConfig
	resolver *Resolver
	lock     syncx.KeyedMutex
	log      *logx.Logger
}

func NewPrebundleCache(config *ProjectConfig, resolver *Resolver, log *logx.Logger) *PrebundleCache {
	return &PrebundleCache{config: config, resolver: resolver, log: log}
}

// cacheKey flattens a bare specifier into a filename: path separators become
// underscores, so `react-dom/client` stores as `react-dom_client.js`.
func cacheKey(specifier string) string {
	return strings.ReplaceAll(specifier, "/", "_")
}

// ArtifactPath returns the on-disk artifact location for a bare specifier.
func (p *PrebundleCache) ArtifactPath(specifier string) string {
	return filepath.Join(p.config.DepsDir(), cacheKey(specifier)+".js")
}

func (p *PrebundleCache) metaPath() string {
	return filepath.Join(p.config.DepsDir(), prebundleMetaFile)
}

// Refresh walks the project source graph, digests the direct dependency set
// and builds any missing artifacts. Called at startup and on every project
// manifest change. Individual bundle failures are warnings; the corresponding
// module endpoint reports them on demand.
func (p *PrebundleCache) Refresh() error {
	deps, err := p.scanDirectDeps()
	if err != nil {
		return err
	}
	sort.Strings(deps)

	h := xxhash.New()
	for _, dep := range deps {
		h.Write([]byte(dep))
		h.Write([]byte{'\n'})
	}
	digest := hex.EncodeToString(h.Sum(nil))

	if meta, err := p.readMeta(); err == nil && meta.Hash == digest {
		return nil
	}

	if err := ensureDir(p.config.DepsDir()); err != nil {
		return err
	}

	var group errgroup.Group
	group.SetLimit(runtime.NumCPU())
	for _, dep := range deps {
		dep := dep
		group.Go(func() error {
			if existsFile(p.ArtifactPath(dep)) {
				return nil
			}
			if _, err := p.Ensure(dep); err != nil {
				p.log.Warnf("prebundle %q: %v", dep, err)
			}
			return nil
		})
	}
	group.Wait()

	return p.writeMeta(prebundleMeta{Hash: digest})
}

// Ensure returns the artifact path for the given bare specifier, bundling it
// first when no artifact exists. Concurrent requests for the same specifier
// collapse into one build.
func (p *PrebundleCache) Ensure(specifier string) (string, error) {
	artifact := p.ArtifactPath(specifier)
	if existsFile(artifact) {
		return artifact, nil
	}

	unlock := p.lock.Lock(cacheKey(specifier))
	defer unlock()

	// the build may have finished while we were waiting on the key
	if existsFile(artifact) {
		return artifact, nil
	}

	entry, err := p.resolver.Resolve(specifier)
	if err != nil {
		return "", err
	}

	ret := esbuild.Build(esbuild.BuildOptions{
		EntryPoints: []string{entry},
		Bundle:      true,
		Write:       false,
		Format:      esbuild.FormatESModule,
		Target:      esbuild.ES2020,
		Platform:    esbuild.PlatformBrowser,
		LogLevel:    esbuild.LogLevelSilent,
	})
	if len(ret.Errors) > 0 {
		return "", &BundleError{Specifier: specifier, Reason: ret.Errors[0].Text}
	}

	if err := ensureDir(p.config.DepsDir()); err != nil {
		return "", err
	}
	tmp := artifact + ".tmp"
	if err := os.WriteFile(tmp, ret.OutputFiles[0].Contents, 0644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, artifact); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return artifact, nil
}

// scanDirectDeps collects every bare specifier reachable from the entry file
// through textual import scanning. The walk follows relative imports inside
// the project tree only; third-party code is never entered.
func (p *PrebundleCache) scanDirectDeps() ([]string, error) {
	deps := set.New[string]()
	visited := set.New[string]()

	var walk func(filename string)
	walk = func(filename string) {
		if visited.Has(filename) {
			return
		}
		visited.Add(filename)

		source, err := os.ReadFile(filename)
		if err != nil {
			p.log.Warnf("scan %s: %v", filename, err)
			return
		}
		bare, relative := scanBareSpecifiers(string(source))
		for _, specifier := range bare {
			deps.Add(specifier)
		}
		dir := filepath.Dir(filename)
		for _, specifier := range relative {
			if next, ok := p.resolveProjectImport(dir, specifier); ok {
				if endsWith(next, ".js", ".jsx", ".ts", ".tsx") {
					walk(next)
				}
			}
		}
	}
	walk(p.config.EntryFile)

	return deps.Values(), nil
}

// resolveProjectImport resolves a relative import against the importing
// file's directory, probing source extensions and index files. Paths outside
// the project root or inside the dep cache are rejected.
func (p *PrebundleCache) resolveProjectImport(dir string, specifier string) (string, bool) {
	base := filepath.Join(dir, filepath.FromSlash(specifier))
	candidates := []string{base}
	for _, ext := range []string{".tsx", ".ts", ".jsx", ".js"} {
		candidates = append(candidates, base+ext)
	}
	for _, ext := range []string{".tsx", ".ts", ".jsx", ".js"} {
		candidates = append(candidates, filepath.Join(base, "index"+ext))
	}
	for _, candidate := range candidates {
		if !existsFile(candidate) {
			continue
		}
		rel, err := filepath.Rel(p.config.RootDir, candidate)
		if err != nil || strings.HasPrefix(rel, "..") || strings.HasPrefix(rel, cacheDirName) {
			return "", false
		}
		return candidate, true
	}
	return "", false
}

func (p *PrebundleCache) readMeta() (meta prebundleMeta, err error) {
	data, err := os.ReadFile(p.metaPath())
	if err != nil {
		return
	}
	err = json.Unmarshal(data, &meta)
	return
}

func (p *PrebundleCache) writeMeta(meta prebundleMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(p.metaPath(), data, 0644)
}
