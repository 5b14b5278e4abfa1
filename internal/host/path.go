package host

import (
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// NormalizePath cleans an output path into the slash-separated, relative
// form used as host identity. Absolute paths and paths escaping the output
// root are rejected.
func NormalizePath(p string) (string, error) {
	p = strings.TrimSpace(filepath.ToSlash(p))
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) || (len(p) > 1 && p[1] == ':') {
		return "", fmt.Errorf("path %q must be relative to the output directory", p)
	}
	clean := path.Clean(p)
	if clean == "." {
		return "", fmt.Errorf("path %q names the output directory itself", p)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path %q escapes the output directory", p)
	}
	return clean, nil
}

// IDForPath derives the host id from an output path.
func IDForPath(p string) (string, error) {
	return NormalizePath(p)
}

// InScope reports whether a normalized path is allowed by scope prefixes.
// An empty scope allows everything.
func InScope(p string, scope []string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, prefix := range scope {
		if prefix == "" || prefix == "." || p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

func sortStrings(s []string) {
	slices.Sort(s)
}
