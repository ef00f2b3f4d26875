package server

import (
	"net/http"
	"os"
	"path/filepath"
)

// serveOverlay serves the error-overlay runtime. A project can override the
// built-in script by placing its own at `<src>/runtime/overlay-runtime.js`.
func (s *Server) serveOverlay(w http.ResponseWriter, r *http.Request) {
	header := w.Header()
	header.Set("Content-Type", jsContentType)

	override := filepath.Join(s.config.SrcDir, "runtime", "overlay-runtime.js")
	if data, err := os.ReadFile(override); err == nil {
		w.Write(data)
		return
	}

	data, err := efs.ReadFile("internal/overlay.js")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("// overlay runtime unavailable: " + err.Error()))
		return
	}
	w.Write(data)
}
