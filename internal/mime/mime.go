package mime

import (
	"path"
	"strings"
)

var mimeExts = map[string][]string{
	"application/javascript;": {"js", "mjs", "cjs"},
	"application/json;":       {"json", "map"},
	"application/wasm":        {"wasm"},
	"application/pdf":         {"pdf"},
	"audio/mpeg":              {"mp3"},
	"audio/ogg":               {"ogg", "oga"},
	"audio/wav":               {"wav"},
	"font/otf":                {"otf"},
	"font/ttf":                {"ttf"},
	"font/woff":               {"woff"},
	"font/woff2":              {"woff2"},
	"image/avif":              {"avif"},
	"image/gif":               {"gif"},
	"image/jpeg":              {"jpg", "jpeg"},
	"image/png":               {"png"},
	"image/svg+xml;":          {"svg"},
	"image/webp":              {"webp"},
	"image/x-icon":            {"ico"},
	"text/css;":               {"css"},
	"text/html;":              {"html", "htm"},
	"text/markdown;":          {"md"},
	"text/plain;":             {"txt"},
	"video/mp4":               {"mp4"},
	"video/webm":              {"webm"},
}

var mimeMap = map[string]string{}

func init() {
	for contentType, exts := range mimeExts {
		// a trailing semicolon marks a text type that wants an explicit charset
		if strings.HasSuffix(contentType, ";") {
			contentType += " charset=utf-8"
		}
		for _, ext := range exts {
			mimeMap[ext] = contentType
		}
	}
}

// ContentType returns the content type of the given filename by extension.
// An unknown extension returns an empty string.
func ContentType(filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		return ""
	}
	return mimeMap[strings.ToLower(ext)]
}
