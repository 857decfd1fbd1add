// Package security validates the file paths and names the splatgeo CLI writes.
package security

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is wrapped by every rejection in this package.
var ErrUnsafePath = errors.New("unsafe path")

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir.
// Symlinks are resolved for the path itself or, when it does not exist yet,
// for its nearest existing parent, so a link cannot redirect an output file
// outside safeDir.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalPath := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		canonicalPath = resolved
	} else {
		// Walk up to the first existing ancestor and resolve that instead.
		for checkPath := absPath; ; {
			parentDir := filepath.Dir(checkPath)
			if parentDir == checkPath {
				break
			}
			if resolved, err := filepath.EvalSymlinks(parentDir); err == nil {
				relToParent, _ := filepath.Rel(parentDir, absPath)
				canonicalPath = filepath.Join(resolved, relToParent)
				break
			}
			checkPath = parentDir
		}
	}

	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("%w: %s is outside %s: %v", ErrUnsafePath, filePath, safeDir, err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("%w: %s escapes %s", ErrUnsafePath, filePath, safeDir)
	}
	return nil
}

// ValidatePathWithinAllowedDirs checks that filePath is inside at least one
// of allowedDirs.
func ValidatePathWithinAllowedDirs(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return fmt.Errorf("%w: no allowed directories specified", ErrUnsafePath)
	}
	for _, dir := range allowedDirs {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be within one of %v", ErrUnsafePath, filePath, allowedDirs)
}

// ValidateOutputPath checks a CLI output path. Outputs may go under the
// working directory, the temp directory or any of extraDirs.
func ValidateOutputPath(filePath string, extraDirs ...string) error {
	if strings.TrimSpace(filePath) == "" {
		return fmt.Errorf("%w: empty output path", ErrUnsafePath)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	allowed := append([]string{cwd, os.TempDir()}, extraDirs...)
	return ValidatePathWithinAllowedDirs(filePath, allowed)
}

// ValidateContentURI checks a tile content URI written into tileset.json.
// It must be a relative path that stays beside or below the tileset.
func ValidateContentURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("%w: empty content uri", ErrUnsafePath)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: content uri %q: %v", ErrUnsafePath, uri, err)
	}
	if u.Scheme != "" || u.Host != "" || strings.HasPrefix(uri, "/") || strings.Contains(uri, `\`) {
		return fmt.Errorf("%w: content uri %q must be relative", ErrUnsafePath, uri)
	}
	clean := path.Clean(u.Path)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: content uri %q leaves the tileset directory", ErrUnsafePath, uri)
	}
	return nil
}

// SanitizeFilename makes a safe file name from an arbitrary string such as
// a capture or run name. Characters other than ASCII letters, digits, dot,
// underscore and dash become a single underscore, the result is capped at
// 128 bytes and leading or trailing dots and underscores are trimmed.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
