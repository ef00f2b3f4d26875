package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ije/gox/utils"
	"golang.org/x/net/html"

	"react-client.dev/internal/mime"
)

// ServeHTTP dispatches the ordered route matchers. Each matcher either
// serves the request or falls through to the next one.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		s.hmr.ServeUpgrade(w, r)
		return
	}

	pathname := r.URL.Path
	switch {
	case strings.HasPrefix(pathname, modulesPrefix):
		s.serveModule(w, r)
		return
	case pathname == overlayPath:
		s.serveOverlay(w, r)
		return
	case strings.HasPrefix(pathname, sourceMapPrefix):
		s.serveSourceMapSnippet(w, r)
		return
	}

	if strings.HasPrefix(pathname, "/src/") || strings.HasSuffix(pathname, ".css") {
		if s.serveTransformed(w, r) {
			return
		}
	}

	if s.servePublic(w, r) {
		return
	}

	if pathname == "/" || pathname == "/index.html" {
		s.serveIndexHtml(w, r)
		return
	}

	http.Error(w, "Not Found", 404)
}

// serveModule serves a prebundled third-party dependency. An artifact on
// disk is streamed directly; otherwise the specifier is resolved and bundled
// into the cache first. Errors surface as JavaScript comments so the
// importing module does not trip over an HTML body.
func (s *Server) serveModule(w http.ResponseWriter, r *http.Request) {
	header := w.Header()
	header.Set("Content-Type", jsContentType)

	specifier := strings.TrimPrefix(r.URL.Path, modulesPrefix)
	artifact, err := s.prebundle.Ensure(specifier)
	if err != nil {
		s.log.Errorf("resolve %q: %v", specifier, err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "// Failed to resolve module %s: %s\n", specifier, errorReason(err))
		return
	}

	file, err := os.Open(artifact)
	if err != nil {
		s.log.Errorf("open artifact %q: %v", artifact, err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "// Failed to resolve module %s: %s\n", specifier, err.Error())
		return
	}
	defer file.Close()
	io.Copy(w, file)
}

func errorReason(err error) string {
	var notFound *ModuleNotFoundError
	if errors.As(err, &notFound) {
		return notFound.Reason
	}
	var bundleErr *BundleError
	if errors.As(err, &bundleErr) {
		return bundleErr.Reason
	}
	return err.Error()
}

// serveTransformed serves a project source file through the transform
// pipeline. Returns false when the URL maps to no file, letting the next
// route handler run.
func (s *Server) serveTransformed(w http.ResponseWriter, r *http.Request) bool {
	filename, ok := s.pipeline.resolveSourcePath(r.URL.Path)
	if !ok {
		return false
	}

	header := w.Header()
	header.Set("Content-Type", jsContentType)

	body, err := s.pipeline.Load(filename)
	if err != nil {
		s.log.Errorf("transform %q: %v", filename, err)
		var transformErr *TransformError
		if errors.As(err, &transformErr) {
			s.hmr.Broadcast(HMRMessage{Type: "error", Message: transformErr.Message})
		}
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "// Failed to transform %s: %s\n", r.URL.Path, err.Error())
		return true
	}
	w.Write(body)
	return true
}

// servePublic streams a file under `<root>/public/` with a content type
// chosen from its extension. Returns false when no such file exists.
func (s *Server) servePublic(w http.ResponseWriter, r *http.Request) bool {
	filename := filepath.Join(s.config.RootDir, "public", filepath.FromSlash(utils.CleanPath(r.URL.Path)))
	fi, err := os.Lstat(filename)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}

	etag := fmt.Sprintf("w/\"%d-%d-%d\"", fi.ModTime().UnixMilli(), fi.Size(), VERSION)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	file, err := os.Open(filename)
	if err != nil {
		http.Error(w, "Internal Server Error", 500)
		return true
	}
	defer file.Close()

	contentType := mime.ContentType(filename)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := w.Header()
	header.Set("Content-Type", contentType)
	header.Set("Cache-Control", "max-age=0, must-revalidate")
	header.Set("Etag", etag)
	io.Copy(w, file)
	return true
}

// serveIndexHtml streams the project index page, injecting the overlay
// script tag and the inline HMR client before `</body>` when they are not
// already present.
func (s *Server) serveIndexHtml(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(s.config.IndexHtmlPath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Not Found", 404)
		} else {
			http.Error(w, "Internal Server Error", 500)
		}
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Cache-Control", "max-age=0, must-revalidate")

	if bytes.Contains(data, []byte(overlayPath)) {
		// scripts already present (user-managed index)
		w.Write(data)
		return
	}

	injected := false
	tokenizer := html.NewTokenizer(bytes.NewReader(data))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.EndTagToken {
			if tagName, _ := tokenizer.TagName(); string(tagName) == "body" && !injected {
				s.writeHmrScripts(w)
				injected = true
			}
		}
		w.Write(tokenizer.Raw())
	}
	if !injected {
		s.writeHmrScripts(w)
	}
}

func (s *Server) writeHmrScripts(w io.Writer) {
	fmt.Fprintf(w, `<script type="module" src="%s"></script>`, overlayPath)
	io.WriteString(w, `<script type="module">`)
	fmt.Fprintf(w, `const ws = new WebSocket("ws://localhost:%d");`, s.config.Port)
	io.WriteString(w, `ws.addEventListener("message", ({ data }) => {`)
	io.WriteString(w, `const msg = JSON.parse(data);`)
	io.WriteString(w, `if (msg.type === "reload") { location.reload(); }`)
	io.WriteString(w, `else if (msg.type === "error") { window.showErrorOverlay && window.showErrorOverlay(msg); }`)
	io.WriteString(w, `else if (msg.type === "update") { window.clearErrorOverlay && window.clearErrorOverlay(); import(msg.path + "?t=" + Date.now()); }`)
	io.WriteString(w, `});`)
	io.WriteString(w, `</script>`)
}
