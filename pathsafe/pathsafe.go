// Package pathsafe normalizes and validates relative paths used for
// session artifacts and standards bundles. It does no I/O: every
// function here is pure, which keeps path-escape bugs testable without
// a filesystem.
package pathsafe

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrPathInvalid is returned when a raw path fails the component/shape
// checks (empty, absolute, traversal segments, disallowed characters).
var ErrPathInvalid = errors.New("path invalid")

// ErrPathEscape is returned when a path resolves outside of its
// expected root.
var ErrPathEscape = errors.New("path escapes root")

// componentPattern matches a single allowed path component: letters,
// digits, underscore, hyphen, dot (extensions).
var componentPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateArtifactPath normalizes raw into a clean relative path,
// rejecting anything unsafe. It never touches disk.
func ValidateArtifactPath(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathInvalid)
	}
	if filepath.IsAbs(raw) {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathInvalid, raw)
	}

	cleaned := filepath.ToSlash(filepath.Clean(raw))
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("%w: empty path after cleaning %q", ErrPathInvalid, raw)
	}

	parts := strings.Split(cleaned, "/")
	for _, p := range parts {
		switch p {
		case "", ".", "..":
			return "", fmt.Errorf("%w: traversal or empty segment in %q", ErrPathInvalid, raw)
		}
		if !componentPattern.MatchString(p) {
			return "", fmt.Errorf("%w: disallowed characters in segment %q", ErrPathInvalid, p)
		}
	}

	return cleaned, nil
}

// ValidateWithinRoot resolves candidate relative to root and confirms
// the result is lexically at or below root. It returns the
// canonicalized absolute path.
func ValidateWithinRoot(candidate, root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	absCandidate, err := filepath.Abs(filepath.Join(root, candidate))
	if err != nil {
		return "", fmt.Errorf("resolve candidate %q: %w", candidate, err)
	}

	rel, err := filepath.Rel(absRoot, absCandidate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathEscape, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q resolves outside %q", ErrPathEscape, candidate, root)
	}

	return absCandidate, nil
}

// MatchesAnyPattern reports whether name matches at least one of the
// doublestar glob patterns. An empty pattern list matches everything
// (no restriction configured).
func MatchesAnyPattern(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	slashName := filepath.ToSlash(name)
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, slashName); err == nil && ok {
			return true
		}
	}
	return false
}
