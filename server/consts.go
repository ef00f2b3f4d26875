package server

// react-client version
const VERSION = 1

const (
	// DefaultPort is the dev server listen port when the config leaves it unset.
	DefaultPort = 5173

	// cacheDirName is the per-project directory holding prebundled deps and logs.
	cacheDirName = ".react-client"

	// depsDirName holds the prebundled browser-ESM artifacts under the cache dir.
	depsDirName = "deps"

	// prebundleMetaFile records the digest of the last-seen direct dependency set.
	prebundleMetaFile = "_meta.json"

	// modulesPrefix routes bare specifiers rewritten into served source files.
	modulesPrefix = "/@modules/"

	// overlayPath serves the error overlay runtime.
	overlayPath = "/@runtime/overlay"

	// sourceMapPrefix serves original-source snippets for the overlay.
	sourceMapPrefix = "/@source-map"
)

// moduleExts are the source extensions served through the transform pipeline,
// in probing order.
var moduleExts = []string{".tsx", ".ts", ".jsx", ".js", ".css"}

// jsContentType is the content type of every JS-expected route.
const jsContentType = "application/javascript; charset=utf-8"
