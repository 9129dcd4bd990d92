package fetcher

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ZIPEntry is one decompressed archive member.
type ZIPEntry struct {
	Name string
	Data []byte
}

// ReadZIP decompresses the members of an in-memory archive whose base name
// satisfies match. A nil match keeps every file.
func ReadZIP(data []byte, match func(name string) bool) ([]ZIPEntry, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	var out []ZIPEntry
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if match != nil && !match(filepath.Base(f.Name)) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return out, eris.Wrapf(err, "zip: open entry %s", f.Name)
		}
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return out, eris.Wrapf(err, "zip: read entry %s", f.Name)
		}
		out = append(out, ZIPEntry{Name: f.Name, Data: b})
	}
	return out, nil
}

// ExtractZIP extracts all files from a ZIP archive to the destination directory.
// Returns the list of extracted file paths.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		path, err := extractZIPEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		if path != "" {
			extracted = append(extracted, path)
		}
	}
	return extracted, nil
}

// ExtractZIPFile extracts a single file from a ZIP archive by name.
func ExtractZIPFile(zipPath, fileName, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.Name == fileName {
			return extractZIPEntry(f, destDir)
		}
	}
	return "", eris.Errorf("zip: file %q not found in archive", fileName)
}

// extractZIPEntry returns the extracted path, or "" for directories.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return "", eris.Wrap(err, "zip: create directory")
		}
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	if _, err := writeFile(destPath, rc); err != nil {
		return "", eris.Wrap(err, "zip: extract")
	}
	return destPath, nil
}
