package files

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// LocalFileHandler serves files from a local directory tree. Used in dev and
// test environments.
type LocalFileHandler struct {
}

var _ FileHandler = &LocalFileHandler{}

func (handler *LocalFileHandler) ListFiles(ctx context.Context, dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		return nil, errors.Wrapf(err, "could not list directory %s", dir)
	}

	var result []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		result = append(result, FileInfo{
			Name:     entry.Name(),
			Location: filepath.Join(dir, entry.Name()),
		})
	}

	return result, nil
}

func (handler *LocalFileHandler) OpenFile(ctx context.Context, location string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Clean(location))
	if err != nil {
		return nil, errors.Wrapf(err, "could not open file %s", location)
	}
	return f, nil
}

func (handler *LocalFileHandler) WriteFile(ctx context.Context, dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Clean(dir), 0750); err != nil {
		return "", errors.Wrapf(err, "could not create directory %s", dir)
	}

	location := filepath.Join(dir, name)
	if err := os.WriteFile(location, data, 0640); err != nil {
		return "", errors.Wrapf(err, "could not write file %s", location)
	}

	return location, nil
}

func (handler *LocalFileHandler) MoveFile(ctx context.Context, location, destDir string) (string, error) {
	if err := os.MkdirAll(filepath.Clean(destDir), 0750); err != nil {
		return "", errors.Wrapf(err, "could not create directory %s", destDir)
	}

	dest := filepath.Join(destDir, filepath.Base(location))
	if err := os.Rename(filepath.Clean(location), dest); err != nil {
		return "", errors.Wrapf(err, "could not move file %s to %s", location, destDir)
	}

	return dest, nil
}
