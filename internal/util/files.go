package util

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ListFiles returns the files in dir with the given extension, sorted.
func ListFiles(dir, ext string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	if err != nil {
		return nil, fmt.Errorf("failed glob %s files in %s: %w", ext, dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// BaseName strips the directory and extension from path.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
