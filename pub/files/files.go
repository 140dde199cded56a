package files

import (
	"context"
	"io"
)

// FileInfo identifies one file visible to a handler. Location is the full
// path (or S3 URI) the other handler methods accept.
type FileInfo struct {
	Name     string
	Location string
}

// File handlers move extract, return and outbound files between the received,
// processed, skipped and error areas of a storage root. This interface allows
// loading from multiple sources, including local directories and AWS S3.
type FileHandler interface {
	// ListFiles returns every file directly under dir.
	ListFiles(ctx context.Context, dir string) ([]FileInfo, error)
	// OpenFile opens one file for reading.
	OpenFile(ctx context.Context, location string) (io.ReadCloser, error)
	// WriteFile creates a file named name under dir and returns its location.
	WriteFile(ctx context.Context, dir, name string, data []byte) (string, error)
	// MoveFile relocates a file into destDir, keeping its base name.
	MoveFile(ctx context.Context, location, destDir string) (string, error)
}
