package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ije/gox/utils"
)

// snippetContextLines is subtracted from the reported 1-based line to get the
// 0-based start of the window, so two lines precede the reported line; two
// more lines follow it.
const snippetContextLines = 3

type sourceMapSnippet struct {
	Source  string `json:"source"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Snippet string `json:"snippet"`
}

// serveSourceMapSnippet answers `GET /@source-map?file=&line=&column=` with a
// short context window from the ORIGINAL source file. The line number is
// interpreted against the original source, not the transformed artifact; the
// inline source maps embedded by the transpiler are consulted only by the
// browser itself.
func (s *Server) serveSourceMapSnippet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	header := w.Header()
	header.Set("Content-Type", "application/json; charset=utf-8")

	file := query.Get("file")
	if file == "" {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("{}"))
		return
	}
	line, err := strconv.Atoi(query.Get("line"))
	if err != nil || line < 1 {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("{}"))
		return
	}
	column, _ := strconv.Atoi(query.Get("column"))

	filename := filepath.Join(s.config.RootDir, filepath.FromSlash(utils.CleanPath(file)))
	data, err := os.ReadFile(filename)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("{}"))
		return
	}

	lines := strings.Split(string(data), "\n")
	start := line - snippetContextLines
	if start < 0 {
		start = 0
	}
	end := line + 2
	if end > len(lines) {
		end = len(lines)
	}

	formatted := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		text := strings.ReplaceAll(strings.ReplaceAll(lines[i], "<", "&lt;"), ">", "&gt;")
		formatted = append(formatted, `<span class="line-number">`+strconv.Itoa(i+1)+`</span> `+text)
	}

	json.NewEncoder(w).Encode(sourceMapSnippet{
		Source:  file,
		File:    file,
		Line:    line,
		Column:  column,
		Snippet: strings.Join(formatted, "\n"),
	})
}
