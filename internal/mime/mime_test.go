package mime

import "testing"

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"logo.svg":   "image/svg+xml; charset=utf-8",
		"photo.JPG":  "image/jpeg",
		"index.html": "text/html; charset=utf-8",
		"app.js":     "application/javascript; charset=utf-8",
		"data.bin":   "",
		"noext":      "",
	}
	for filename, want := range cases {
		if got := ContentType(filename); got != want {
			t.Fatalf("ContentType(%q) = %q, want %q", filename, got, want)
		}
	}
}
