package filesystem

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// alwaysIgnoredDirs are never watched and never produce events: VCS
// internals, dependency trees, the deploy CLI's own cache and our state
// directory. Deploy output landing in any of these must not retrigger
// the loop.
var alwaysIgnoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".wrangler":    true,
	".workerwatch": true,
}

// Matcher provides pattern matching with pre-compiled regexes
type Matcher struct {
	ignoreRegexes []*regexp.Regexp
}

// NewMatcher compiles the configured ignore globs once up front
func NewMatcher(ignorePatterns []string) *Matcher {
	m := &Matcher{
		ignoreRegexes: make([]*regexp.Regexp, 0, len(ignorePatterns)),
	}
	for _, pattern := range ignorePatterns {
		regex := globToRegex(pattern)
		if compiled, err := regexp.Compile(regex); err == nil {
			m.ignoreRegexes = append(m.ignoreRegexes, compiled)
		}
	}
	return m
}

// globToRegex converts a glob pattern to a regular expression
func globToRegex(glob string) string {
	// Escape special regex characters except * and ?
	regex := regexp.QuoteMeta(glob)
	// Replace \* with .* (match any characters)
	regex = strings.ReplaceAll(regex, `\*`, ".*")
	// Replace \? with . (match single character)
	regex = strings.ReplaceAll(regex, `\?`, ".")
	// Anchor the pattern
	return "^" + regex + "$"
}

// normalizePath rewrites both separator spellings to forward slashes.
// filepath.ToSlash alone leaves backslashes untouched on Unix, and paths
// arrive in both spellings from tooling that mixes them.
func normalizePath(path string) string {
	return strings.ReplaceAll(filepath.ToSlash(path), `\`, "/")
}

// matchesIgnorePattern checks the base name and the slash-normalized full
// path against the configured globs, so "dist\\bundle.js" and
// "dist/bundle.js" spellings both match.
func (m *Matcher) matchesIgnorePattern(filename, fullPath string) bool {
	normalized := normalizePath(fullPath)
	for _, regex := range m.ignoreRegexes {
		if regex.MatchString(filename) || regex.MatchString(normalized) {
			return true
		}
	}
	return false
}

// ShouldIgnorePath reports whether any segment of the path is an
// always-ignored directory, in either separator spelling.
func ShouldIgnorePath(path string) bool {
	for _, segment := range strings.Split(normalizePath(path), "/") {
		if alwaysIgnoredDirs[segment] {
			return true
		}
	}
	return false
}

// ShouldIgnoreDir determines if a directory should be skipped when arming
// watches: always-ignored names plus hidden dot-directories.
func ShouldIgnoreDir(path string) bool {
	dirName := filepath.Base(path)
	if alwaysIgnoredDirs[dirName] {
		return true
	}
	if strings.HasPrefix(dirName, ".") && dirName != "." && dirName != ".." {
		return true
	}
	return false
}

// ShouldProcessEvent determines if a file system event is a real project
// change worth signaling
func ShouldProcessEvent(event fsnotify.Event, m *Matcher) bool {
	// Process Write, Create, Remove, and Rename events
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	if ShouldIgnorePath(event.Name) {
		return false
	}

	filename := filepath.Base(event.Name)

	// Skip common editor temporary files that cause loops
	if strings.HasPrefix(filename, ".") && (strings.HasSuffix(filename, ".swp") ||
		strings.HasSuffix(filename, ".tmp") ||
		strings.HasSuffix(filename, "~") ||
		strings.Contains(filename, ".sw")) {
		return false
	}
	if strings.HasSuffix(filename, "~") || filename == "4913" {
		return false
	}

	// Skip VSCode temporary files
	if strings.HasPrefix(filename, ".vscode") || strings.Contains(event.Name, ".vscode") {
		return false
	}

	if m != nil && m.matchesIgnorePattern(filename, event.Name) {
		return false
	}

	return true
}

// OpString renders an fsnotify op as a single lowercase word for reports
func OpString(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "change"
	}
}
