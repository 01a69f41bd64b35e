// gitignore.go implements root-level .gitignore/.ignore pattern matching,
// adapted from standardbeagle-lci's internal/config/gitignore.go: the
// same fast-path pattern classification (exact/prefix/suffix/regex) so a
// project with thousands of files doesn't pay regex cost per path, just
// scoped down to the single-root case spec.md §4.2/§9 calls for (no
// nested .gitignore support in v1).
package filefilter

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

type patternKind int

const (
	patternExact patternKind = iota
	patternPrefix
	patternSuffix
	patternGlob
)

type ignorePattern struct {
	raw         string
	negate      bool
	dirOnly     bool
	anchored    bool
	kind        patternKind
	prefix      string
	suffix      string
	compiled    *regexp.Regexp
}

// gitignoreMatcher holds the parsed pattern set for one root.
type gitignoreMatcher struct {
	patterns []ignorePattern
}

func newGitignoreMatcher() *gitignoreMatcher {
	return &gitignoreMatcher{}
}

// loadRootIgnoreFiles reads root/.gitignore and root/.ignore, if present.
// Missing files are not an error (spec.md §4.2).
func (m *gitignoreMatcher) loadRootIgnoreFiles(root string) error {
	for _, name := range []string{".gitignore", ".ignore"} {
		if err := m.loadFile(filepath.Join(root, name)); err != nil {
			return err
		}
	}
	return nil
}

func (m *gitignoreMatcher) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.patterns = append(m.patterns, parsePattern(line))
	}
	return scanner.Err()
}

func parsePattern(line string) ignorePattern {
	p := ignorePattern{raw: line}

	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}

	p.raw = line
	switch {
	case !strings.ContainsAny(line, "*?["):
		p.kind = patternExact
	case strings.HasPrefix(line, "*") && !strings.Contains(line[1:], "*"):
		p.kind = patternSuffix
		p.suffix = line[1:]
	case strings.HasSuffix(line, "*") && !strings.Contains(line[:len(line)-1], "*"):
		p.kind = patternPrefix
		p.prefix = line[:len(line)-1]
	default:
		p.kind = patternGlob
		p.compiled = regexp.MustCompile(globToRegex(line))
	}
	return p
}

func globToRegex(pattern string) string {
	re := regexp.QuoteMeta(pattern)
	re = strings.ReplaceAll(re, `\*`, `.*`)
	re = strings.ReplaceAll(re, `\?`, `.`)
	re = strings.ReplaceAll(re, `\[`, `[`)
	re = strings.ReplaceAll(re, `\]`, `]`)
	return "^" + re + "$"
}

// shouldIgnore reports whether relPath (slash-separated, relative to
// root) is ignored. isDir distinguishes directory-only patterns.
func (m *gitignoreMatcher) shouldIgnore(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)
	ignored := false
	for _, p := range m.patterns {
		if matchesPattern(p, relPath, isDir) {
			ignored = !p.negate
		}
	}
	return ignored
}

func matchesPattern(p ignorePattern, path string, isDir bool) bool {
	if p.dirOnly {
		if isDir {
			return matchSingle(p, path) || (strings.HasPrefix(path, p.raw+"/"))
		}
		return strings.HasPrefix(path, p.raw+"/")
	}

	if p.anchored {
		return matchSingle(p, path)
	}

	if matchSingle(p, path) {
		return true
	}
	parts := strings.Split(path, "/")
	for i := 0; i < len(parts); i++ {
		if matchSingle(p, strings.Join(parts[i:], "/")) {
			return true
		}
	}
	return false
}

func matchSingle(p ignorePattern, path string) bool {
	switch p.kind {
	case patternExact:
		return p.raw == path
	case patternPrefix:
		return strings.HasPrefix(path, p.prefix)
	case patternSuffix:
		return strings.HasSuffix(path, p.suffix)
	case patternGlob:
		return p.compiled.MatchString(path)
	default:
		return false
	}
}
