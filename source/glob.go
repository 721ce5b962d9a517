package source

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPattern matches python solver sources anywhere under a root.
const DefaultPattern = "**/*.py"

// DefaultExcludeDirs are directory names never searched.
var DefaultExcludeDirs = []string{".git", "__pycache__", ".venv", "venv", "node_modules", ".tox"}

// Glob lists regular files under root matching pattern, which may use **.
// Results are root-relative, OS-separated and sorted. Files inside
// DefaultExcludeDirs or hidden directories are skipped.
func Glob(root, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q under %s: %w", pattern, root, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if excludedPath(m) {
			continue
		}
		info, err := fs.Stat(fsys, m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, filepath.FromSlash(m))
	}
	sort.Strings(files)
	return files, nil
}

func excludedPath(slashPath string) bool {
	dir := path.Dir(slashPath)
	if dir == "." {
		return false
	}
	for _, part := range strings.Split(dir, "/") {
		if excludedDir(part) {
			return true
		}
	}
	return false
}

func excludedDir(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." && name != ".." {
		return true
	}
	for _, ex := range DefaultExcludeDirs {
		if name == ex {
			return true
		}
	}
	return false
}
