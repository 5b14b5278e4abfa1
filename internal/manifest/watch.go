package manifest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/hostgen/internal/watch"
)

// watchPrefix marks observe ids that name filesystem paths or globs.
const watchPrefix = "fs:"

// WatchID returns the observe id for a filesystem path or glob.
func WatchID(p string) string {
	return watchPrefix + filepath.ToSlash(p)
}

// Resolver maps observe ids produced by WatchID onto sources of hub.
// A glob id watches the static directory prefix and filters by the rest.
func Resolver(hub *watch.Hub) func(id string) (watch.Source, error) {
	return func(id string) (watch.Source, error) {
		p, ok := strings.CutPrefix(id, watchPrefix)
		if !ok || p == "" {
			return nil, fmt.Errorf("unsupported watch id %q", id)
		}
		if !strings.ContainsAny(p, "*?[{") {
			return hub.Path(filepath.FromSlash(p)), nil
		}
		base, pattern := doublestar.SplitPattern(p)
		return hub.Path(filepath.FromSlash(base), pattern), nil
	}
}
