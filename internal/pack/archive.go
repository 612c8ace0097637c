package pack

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/wfassist/tailor/internal/domain"
)

// ExportInfoFileName is written next to manifest.json by Export and skipped on import
const ExportInfoFileName = "export_info.json"

// BackupManifestFileName lists the packs contained in a backup archive
const BackupManifestFileName = "backup_manifest.json"

// maxExtractedFileSize guards against decompression bombs
const maxExtractedFileSize = 512 << 20

// openArchive opens a ZIP file, mapping failures to INVALID_ARCHIVE
func openArchive(archivePath string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInvalidArchive, "file is not a valid ZIP archive", 400, err,
			map[string]any{"archive": archivePath})
	}
	return zr, nil
}

// findEntry returns the archive entry with the exact slash path, or nil
func findEntry(files []*zip.File, name string) *zip.File {
	for _, f := range files {
		if strings.TrimPrefix(f.Name, "./") == name {
			return f
		}
	}
	return nil
}

// readEntry reads the full content of an archive entry
func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxExtractedFileSize))
}

// extractEntries extracts every entry under prefix into targetDir, stripping the prefix.
// Entries named in skip (relative to prefix) are not extracted.
func extractEntries(files []*zip.File, prefix, targetDir string, skip ...string) error {
	for _, file := range files {
		name := strings.TrimPrefix(file.Name, "./")
		if prefix != "" {
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			name = strings.TrimPrefix(name, prefix)
		}
		if name == "" || isSkipped(name, skip) {
			continue
		}
		if err := extractZipFile(file, name, targetDir); err != nil {
			return err
		}
	}
	return nil
}

func isSkipped(name string, skip []string) bool {
	for _, s := range skip {
		if name == s {
			return true
		}
	}
	return false
}

// extractZipFile extracts a single file from a zip archive
func extractZipFile(file *zip.File, name, targetDir string) error {
	// Sanitize path to prevent zip slip
	destPath := filepath.Join(targetDir, filepath.FromSlash(name))
	if !isSubPath(targetDir, destPath) {
		return fmt.Errorf("invalid file path in archive: %s", file.Name)
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(destPath, 0755)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	n, err := io.Copy(dst, io.LimitReader(src, maxExtractedFileSize+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n > maxExtractedFileSize {
		return fmt.Errorf("archive entry too large: %s", file.Name)
	}
	return nil
}

// isSubPath checks if child is a subpath of parent
func isSubPath(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	if filepath.IsAbs(rel) || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// addDirToZip writes every file of srcDir into zw under prefix, in sorted order
func addDirToZip(zw *zip.Writer, srcDir, prefix string) error {
	files, err := listFiles(srcDir)
	if err != nil {
		return err
	}

	for _, rel := range files {
		if err := addFileToZip(zw, filepath.Join(srcDir, filepath.FromSlash(rel)), path.Join(prefix, rel)); err != nil {
			return err
		}
	}
	return nil
}

func addFileToZip(zw *zip.Writer, srcPath, name string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// addBytesToZip writes an in-memory file into zw
func addBytesToZip(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// writeArchive creates dest atomically: the zip is built in a temp file and renamed into place
func writeArchive(dest string, build func(zw *zip.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".archive-*.zip")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)
	if err = build(zw); err != nil {
		_ = zw.Close()
		_ = tmp.Close()
		return err
	}
	if err = zw.Close(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}

// replaceDir moves staging into target. A previous target is moved aside first and
// put back if the swap fails, so target is never left missing.
func replaceDir(staging, target string) error {
	var aside string
	if _, err := os.Stat(target); err == nil {
		aside = target + ".old-" + filepath.Base(staging)
		if err := os.Rename(target, aside); err != nil {
			return fmt.Errorf("failed to move previous install aside: %w", err)
		}
	}

	if err := os.Rename(staging, target); err != nil {
		if aside != "" {
			_ = os.Rename(aside, target)
		}
		return fmt.Errorf("failed to move pack into place: %w", err)
	}

	if aside != "" {
		_ = os.RemoveAll(aside)
	}
	return nil
}
