package extract

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/tarstream/tarstream/entry"
)

// GlobFilter builds an Options.Filter callback from a set of
// doublestar patterns ("**"-aware matching, the same matcher
// elliotnunn/BeHierarchic uses for its own archive-member globbing):
// an entry is kept when its path matches at least one pattern.
func GlobFilter(patterns ...string) func(path string, e *entry.ReadEntry) bool {
	return func(path string, e *entry.ReadEntry) bool {
		for _, pat := range patterns {
			if ok, _ := doublestar.Match(pat, path); ok {
				return true
			}
		}
		return false
	}
}
