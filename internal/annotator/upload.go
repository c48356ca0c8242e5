package annotator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// UploadPrefix is prepended to the base name of every stored upload.
const UploadPrefix = "uploaded_"

// UploadPath derives the storage path for an uploaded file name. Directory
// components in filename are discarded.
func UploadPath(dir, filename string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	if base == "" || base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("invalid upload file name %q", filename)
	}
	return filepath.Join(dir, UploadPrefix+base), nil
}

// SaveUpload writes r to the derived path under dir, replacing any previous
// file with the same name.
func SaveUpload(dir, filename string, r io.Reader) (string, error) {
	path, err := UploadPath(dir, filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("store upload: %w", err)
	}
	return path, nil
}
