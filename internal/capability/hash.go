package capability

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ComputeContentHash recursively enumerates every markdown file under dir,
// sorts paths lexicographically, and feeds "<relative_path>\n<contents>"
// for each into a single SHA-256 (spec.md §4.4 "Content hash"). It never
// reads mtimes or absolute paths, so it is pure: identical directory
// contents always yield the identical digest (spec.md §8 invariant 5).
func ComputeContentHash(dir string) (string, error) {
	var relPaths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		relPaths = append(relPaths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(relPaths)

	h := sha256.New()
	for _, rel := range relPaths {
		contents, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return "", err
		}
		h.Write([]byte(rel))
		h.Write([]byte("\n"))
		h.Write(contents)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
