package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	logx "github.com/ije/gox/log"
	"github.com/ije/gox/term"
	"github.com/pkg/browser"
)

// ErrPortInUse reports that the configured listen port is taken; the caller
// may retry with another port.
var ErrPortInUse = errors.New("port is already in use")

// Server is the dev server core: one long-lived process exposing one HTTP
// endpoint that also upgrades to WebSocket on demand.
type Server struct {
	config    *ProjectConfig
	log       *logx.Logger
	resolver  *Resolver
	prebundle *PrebundleCache
	pipeline  *transformPipeline
	plugins   *pluginHost
	hmr       *hmrBroadcaster
	watcher   *watcher
	httpd     *http.Server
}

// New assembles a dev server from the given project config.
func New(config *ProjectConfig) (*Server, error) {
	if err := ensureDir(config.LogDir()); err != nil {
		return nil, err
	}
	logger, err := logx.New(fmt.Sprintf("file:%s?buffer=32k", path.Join(config.LogDir(), "dev.log")))
	if err != nil {
		return nil, fmt.Errorf("initiate logger: %w", err)
	}
	if DEBUG {
		logger.SetLevelByName("debug")
	} else {
		logger.SetLevelByName("info")
		logger.SetQuite(true)
	}

	cache, err := newTransformCache()
	if err != nil {
		return nil, fmt.Errorf("initiate transform cache: %w", err)
	}

	resolver := NewResolver(config.RootDir)
	plugins := &pluginHost{plugins: config.Plugins, log: logger}
	s := &Server{
		config:    config,
		log:       logger,
		resolver:  resolver,
		prebundle: NewPrebundleCache(config, resolver, logger),
		plugins:   plugins,
		hmr:       newHMRBroadcaster(logger),
		pipeline: &transformPipeline{
			config:  config,
			cache:   cache,
			plugins: plugins,
			log:     logger,
		},
	}
	return s, nil
}

// Listen binds the configured port. A taken port is reported as ErrPortInUse
// so the caller can offer an alternate.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", s.config.Port))
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w: %d", ErrPortInUse, s.config.Port)
		}
		return nil, err
	}
	return ln, nil
}

// Run prebundles dependencies, starts the watcher and serves HTTP on the
// given listener until SIGINT. Shutdown closes the WebSocket set first (no
// new broadcasts), then the HTTP server, then the watcher.
func (s *Server) Run(ln net.Listener) error {
	if err := s.prebundle.Refresh(); err != nil {
		// a failed prebundle pass is not fatal; modules build on demand
		s.log.Warnf("prebundle: %v", err)
	}

	w, err := newWatcher(s.config, s.log)
	if err != nil {
		return fmt.Errorf("initiate watcher: %w", err)
	}
	w.onSourceChange = s.handleSourceChange
	w.onManifestChange = s.handleManifestChange
	if err := w.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	s.watcher = w

	s.httpd = &http.Server{Handler: s}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpd.Serve(ln)
	}()

	url := fmt.Sprintf("http://localhost:%d", s.config.Port)
	fmt.Printf(term.Green("Server is ready on %s\n"), url)
	s.log.Infof("server is ready on %s", url)

	s.plugins.applyServerStart(&ServerContext{
		Config:    s.config,
		Broadcast: s.hmr.Broadcast,
	})

	if s.config.Open {
		if err := browser.OpenURL(url); err != nil {
			s.log.Warnf("open browser: %v", err)
		}
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-c:
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.shutdown()
			return err
		}
	}

	s.shutdown()
	return nil
}

func (s *Server) shutdown() {
	s.hmr.Close()
	if s.httpd != nil {
		s.httpd.Close()
	}
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.log.FlushBuffer()
}

// handleSourceChange reacts to a watcher event for a project source file:
// drop the transform record, run the hot-update hooks, broadcast the update.
func (s *Server) handleSourceChange(filename string) {
	s.pipeline.Invalidate(filename)
	s.plugins.applyHotUpdate(filename, s.hmr.Broadcast)

	rel, err := filepath.Rel(s.config.RootDir, filename)
	if err != nil {
		s.log.Warnf("watch: %s is outside the project root", filename)
		return
	}
	urlPath := "/" + filepath.ToSlash(rel)
	s.log.Debugf("hmr update %s", urlPath)
	s.hmr.Broadcast(HMRMessage{Type: "update", Path: urlPath})
}

// handleManifestChange refreshes the prebundle cache when the project
// manifest changes.
func (s *Server) handleManifestChange() {
	s.log.Debugf("project manifest changed, refreshing dep cache")
	if err := s.prebundle.Refresh(); err != nil {
		s.log.Warnf("prebundle refresh: %v", err)
	}
}

// Serve derives the project config from options, binds the port and runs the
// server. It is the single entry point the CLI wiring calls.
func Serve(options Options) error {
	config, err := NewProjectConfig(options)
	if err != nil {
		return err
	}
	s, err := New(config)
	if err != nil {
		return err
	}
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Run(ln)
}
