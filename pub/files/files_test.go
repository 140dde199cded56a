package files

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileHandlerRoundTrip(t *testing.T) {
	ctx := context.Background()
	handler := &LocalFileHandler{}
	root := t.TempDir()

	received := filepath.Join(root, "received")
	processed := filepath.Join(root, "processed")

	location, err := handler.WriteFile(ctx, received, "2021-01-15-12-00-00-payments.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)

	infos, err := handler.ListFiles(ctx, received)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "2021-01-15-12-00-00-payments.csv", infos[0].Name)
	assert.Equal(t, location, infos[0].Location)

	rc, err := handler.OpenFile(ctx, location)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "a,b\n1,2\n", string(data))

	moved, err := handler.MoveFile(ctx, location, processed)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(processed, "2021-01-15-12-00-00-payments.csv"), moved)

	_, err = os.Stat(location)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(moved)
	assert.NoError(t, err)
}

func TestLocalFileHandlerSkipsDirectories(t *testing.T) {
	ctx := context.Background()
	handler := &LocalFileHandler{}
	root := t.TempDir()

	require.NoError(t, os.Mkdir(filepath.Join(root, "subdir"), 0750))
	_, err := handler.WriteFile(ctx, root, "file.csv", []byte("x"))
	require.NoError(t, err)

	infos, err := handler.ListFiles(ctx, root)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "file.csv", infos[0].Name)
}

func TestParseS3URI(t *testing.T) {
	bucket, key := ParseS3URI("s3://my-bucket/path/to/file")
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "path/to/file", key)

	bucket, key = ParseS3URI("s3://my-bucket")
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "", key)
}
