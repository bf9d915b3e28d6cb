package watcher

import "github.com/gobwas/glob"

// globMatcher matches a slash-separated relative path against a watch
// pattern, treating '/' as the glob path separator so "**" spans
// directories the way the config file's watch globs are documented to.
type globMatcher struct {
	g glob.Glob
}

func newGlobMatcher(pattern string) (globMatcher, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return globMatcher{}, err
	}
	return globMatcher{g: g}, nil
}

// Match reports whether rel matches the pattern.
func (m globMatcher) Match(rel string) bool {
	return m.g.Match(rel)
}
