package bridge

import (
	"path"
	"strings"
)

// normalizePath cleans a FUSE path into canonical "/a/b" form.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// splitPath returns the parent directory and leaf name of a path.
// The parent of a top-level entry is "/".
func splitPath(p string) (dir, name string) {
	p = normalizePath(p)
	return path.Dir(p), path.Base(p)
}
