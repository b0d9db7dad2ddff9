// Package locator finds the program a session should launch.
package locator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ncerr "execgate/internal/errors"
)

// Locator resolves the path of the executable to launch.
type Locator interface {
	Locate() (string, error)
}

// DirLocator scans Root (non-recursively) for the single regular file
// whose extension matches Ext, compared case-insensitively.  Nothing is
// cached, so the artifact may be replaced between sessions.
type DirLocator struct {
	Root string
	Ext  string // including the leading dot, e.g. ".exe"
}

// Locate returns the one matching file, or an error wrapping
// [ncerr.ErrNoArtifact] or [ncerr.ErrAmbiguousArtifact].
func (l *DirLocator) Locate() (string, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return "", fmt.Errorf("reading directory %q: %w", l.Root, err)
	}

	var found []string
	for _, e := range entries {
		if !strings.EqualFold(filepath.Ext(e.Name()), l.Ext) {
			continue
		}
		path := filepath.Join(l.Root, e.Name())
		// Stat follows symlinks, so a link to a binary counts.
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		found = append(found, path)
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: no %s file in %q", ncerr.ErrNoArtifact, l.Ext, l.Root)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ncerr.ErrAmbiguousArtifact, strings.Join(found, ", "))
	}
}

// Fixed always returns the same path.  Useful when the program is
// named explicitly rather than discovered.
type Fixed string

// Locate returns the fixed path.
func (f Fixed) Locate() (string, error) {
	if f == "" {
		return "", ncerr.ErrNoArtifact
	}
	return string(f), nil
}
