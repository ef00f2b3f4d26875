package server

import (
	"os"
	"strings"
)

// isRelativeSpecifier returns true if the specifier is a local path.
func isRelativeSpecifier(specifier string) bool {
	return strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") || specifier == "." || specifier == ".."
}

// isAbsolutePathSpecifier returns true if the specifier is an absolute path.
func isAbsolutePathSpecifier(specifier string) bool {
	return strings.HasPrefix(specifier, "/") || strings.HasPrefix(specifier, "file://")
}

// isBareSpecifier returns true if the specifier does not start with '.' or '/'.
func isBareSpecifier(specifier string) bool {
	return specifier != "" && specifier[0] != '.' && specifier[0] != '/'
}

// endsWith returns true if the given string ends with any of the suffixes.
func endsWith(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

// existsFile checks if the given path exists and is a regular file.
func existsFile(path string) bool {
	fi, err := os.Lstat(path)
	return err == nil && fi.Mode().IsRegular()
}

// existsDir checks if the given path exists and is a directory.
func existsDir(path string) bool {
	fi, err := os.Lstat(path)
	return err == nil && fi.IsDir()
}

// ensureDir creates the directory if it does not exist.
func ensureDir(dir string) (err error) {
	_, err = os.Lstat(dir)
	if err != nil && os.IsNotExist(err) {
		err = os.MkdirAll(dir, 0755)
	}
	return
}
