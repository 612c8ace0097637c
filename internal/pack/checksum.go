package pack

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// listFiles returns every regular file under dir as slash-separated relative paths, sorted.
// The sort order is what makes checksums stable across filesystems.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Checksum computes the SHA-256 over the bytes of every file in dir, concatenated in
// sorted relative-path order. It also returns the total size of those files.
func Checksum(dir string) (string, int64, error) {
	files, err := listFiles(dir)
	if err != nil {
		return "", 0, fmt.Errorf("failed to list pack files: %w", err)
	}

	h := sha256.New()
	var size int64
	for _, rel := range files {
		n, err := hashFile(h, filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return "", 0, fmt.Errorf("failed to hash %s: %w", rel, err)
		}
		size += n
	}

	return hex.EncodeToString(h.Sum(nil)), size, nil
}

func hashFile(w io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

// DirSize returns the total size of the regular files under dir
func DirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}
