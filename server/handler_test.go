package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, config *ProjectConfig) *Server {
	t.Helper()
	s, err := New(config)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func get(t *testing.T, s *Server, path string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	res := rec.Result()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res, string(body)
}

func TestIndexInjection(t *testing.T) {
	config := writeProject(t, map[string]string{})
	s := newTestServer(t, config)

	res, body := get(t, s, "/")
	if res.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if !strings.Contains(body, `src="/@runtime/overlay"`) {
		t.Fatalf("overlay script tag missing:\n%s", body)
	}
	if !strings.Contains(body, `new WebSocket("ws://localhost:5173")`) {
		t.Fatalf("hmr client script missing:\n%s", body)
	}
	if strings.Index(body, `src="/@runtime/overlay"`) > strings.Index(body, "</body>") {
		t.Fatal("scripts must be injected before </body>")
	}

	// /index.html serves the same page
	res, body2 := get(t, s, "/index.html")
	if res.StatusCode != 200 || body2 != body {
		t.Fatal("/index.html must serve the injected index page")
	}
}

func TestIndexAlreadyInjected(t *testing.T) {
	index := `<html><body><script type="module" src="/@runtime/overlay"></script></body></html>`
	config := writeProject(t, map[string]string{
		"index.html": index,
	})
	s := newTestServer(t, config)

	_, body := get(t, s, "/")
	if body != index {
		t.Fatalf("an index with the overlay script must be served untouched:\n%s", body)
	}
}

func TestModuleEndpoint(t *testing.T) {
	config := writeProject(t, map[string]string{})
	writePackage(t, config.RootDir, "greeter", `{"name": "greeter", "module": "index.js"}`, map[string]string{
		"index.js": "export function greet() { return 'hi'; }\n",
	})
	s := newTestServer(t, config)

	res, body := get(t, s, "/@modules/greeter")
	if res.StatusCode != 200 {
		t.Fatalf("unexpected status: %d, body: %s", res.StatusCode, body)
	}
	if ct := res.Header.Get("Content-Type"); ct != jsContentType {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if !strings.Contains(body, "greet") {
		t.Fatalf("unexpected artifact body:\n%s", body)
	}
	if !existsFile(filepath.Join(config.DepsDir(), "greeter.js")) {
		t.Fatal("artifact was not written to the dep cache")
	}
}

func TestModuleEndpointSubpath(t *testing.T) {
	config := writeProject(t, map[string]string{})
	writePackage(t, config.RootDir, "react-dom", `{
		"name": "react-dom",
		"main": "index.js",
		"exports": {
			".": "./index.js",
			"./client": {"import": "./client.mjs", "default": "./client.js"}
		}
	}`, map[string]string{
		"index.js":   "export default {};\n",
		"client.mjs": "export function createRoot(el) { return el; }\n",
		"client.js":  "module.exports = {};\n",
	})
	s := newTestServer(t, config)

	res, body := get(t, s, "/@modules/react-dom/client")
	if res.StatusCode != 200 {
		t.Fatalf("unexpected status: %d, body: %s", res.StatusCode, body)
	}
	if !strings.Contains(body, "createRoot") {
		t.Fatalf("missing createRoot export:\n%s", body)
	}
	if !existsFile(filepath.Join(config.DepsDir(), "react-dom_client.js")) {
		t.Fatal("flattened artifact missing")
	}
}

func TestModuleEndpointUnknown(t *testing.T) {
	config := writeProject(t, map[string]string{})
	s := newTestServer(t, config)

	res, body := get(t, s, "/@modules/does-not-exist")
	if res.StatusCode != 500 {
		t.Fatalf("unexpected status: %d", res.StatusCode)
	}
	if !strings.HasPrefix(body, "// Failed to resolve module does-not-exist:") {
		t.Fatalf("error body must be a JS comment:\n%s", body)
	}
}

func TestSourceRoute(t *testing.T) {
	config := writeProject(t, map[string]string{
		"src/App.tsx": `export default function App() { return <div />; }` + "\n",
	})
	s := newTestServer(t, config)

	res, body := get(t, s, "/src/App.tsx")
	if res.StatusCode != 200 {
		t.Fatalf("unexpected status: %d, body: %s", res.StatusCode, body)
	}
	if ct := res.Header.Get("Content-Type"); ct != jsContentType {
		t.Fatalf("unexpected content type: %s", ct)
	}
}

func TestCSSRouteOutsideSrc(t *testing.T) {
	config := writeProject(t, map[string]string{
		"styles.css": "body { margin: 0; }\n",
	})
	s := newTestServer(t, config)

	res, body := get(t, s, "/styles.css")
	if res.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", res.StatusCode)
	}
	if !strings.Contains(body, "document.createElement('style')") {
		t.Fatalf("css was not wrapped in the style installer:\n%s", body)
	}
}

func TestPublicFile(t *testing.T) {
	config := writeProject(t, map[string]string{
		"public/logo.svg": `<svg xmlns="http://www.w3.org/2000/svg"></svg>`,
	})
	s := newTestServer(t, config)

	res, body := get(t, s, "/logo.svg")
	if res.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/svg+xml") {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if !strings.Contains(body, "<svg") {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestOverlayEndpoint(t *testing.T) {
	config := writeProject(t, map[string]string{})
	s := newTestServer(t, config)

	res, body := get(t, s, "/@runtime/overlay")
	if res.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != jsContentType {
		t.Fatalf("unexpected content type: %s", ct)
	}
	for _, want := range []string{"showErrorOverlay", "clearErrorOverlay", "unhandledrejection"} {
		if !strings.Contains(body, want) {
			t.Fatalf("overlay runtime missing %q", want)
		}
	}
}

func TestOverlayOverride(t *testing.T) {
	override := "// custom overlay\nexport {};\n"
	config := writeProject(t, map[string]string{
		"src/runtime/overlay-runtime.js": override,
	})
	s := newTestServer(t, config)

	_, body := get(t, s, "/@runtime/overlay")
	if body != override {
		t.Fatalf("override file was not served:\n%s", body)
	}
}

func TestNotFound(t *testing.T) {
	config := writeProject(t, map[string]string{})
	s := newTestServer(t, config)

	res, _ := get(t, s, "/nope/nothing.txt")
	if res.StatusCode != 404 {
		t.Fatalf("unexpected status: %d", res.StatusCode)
	}
}

func TestTransformErrorSurface(t *testing.T) {
	config := writeProject(t, map[string]string{
		"src/bad.ts": "export const = ;\n",
	})
	s := newTestServer(t, config)

	res, body := get(t, s, "/src/bad.ts")
	if res.StatusCode != 500 {
		t.Fatalf("unexpected status: %d", res.StatusCode)
	}
	if !strings.HasPrefix(body, "// Failed to transform /src/bad.ts:") {
		t.Fatalf("error body must be a JS comment:\n%s", body)
	}
}
