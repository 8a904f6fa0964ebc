package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/logging"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/storage"
)

func TestFSStore(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	key, err := s.Put(ctx, "images/./a.png", bytes.NewReader([]byte("png")))
	require.NoError(t, err)
	assert.Equal(t, "images/a.png", key)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "png", string(b))

	_, err = s.Get(ctx, "images/missing.png")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// a file used as a directory fails with something other than not-found
	rc, err = s.Get(ctx, "images/a.png/x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
	assert.Nil(t, rc)

	for _, bad := range []string{"", "/etc/passwd", "../x", "a/../../x", `a\b`} {
		_, err := s.Put(ctx, bad, bytes.NewReader(nil))
		assert.ErrorIs(t, err, storage.ErrInvalidKey, bad)
	}
}

type flakyBlobs struct {
	failures int
	calls    int
}

func (f *flakyBlobs) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("disk busy")
	}
	return key, nil
}

func (f *flakyBlobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, storage.ErrNotFound
}

func TestImageStoreUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("url", func(t *testing.T) {
		fs, err := storage.NewFSStore(t.TempDir())
		require.NoError(t, err)
		s := storage.NewImageStore(fs, "http://localhost:8080/assets/", 0, logging.Discard())
		u, err := s.Upload(ctx, []byte{1, 2, 3}, "1700000000000-abcdef12.png")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/assets/images/1700000000000-abcdef12.png", u)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		blobs := &flakyBlobs{failures: 2}
		s := storage.NewImageStore(blobs, "/assets", 2, logging.Discard())
		u, err := s.Upload(ctx, []byte{1}, "x.png")
		require.NoError(t, err)
		assert.Equal(t, "/assets/images/x.png", u)
		assert.Equal(t, 3, blobs.calls)
	})

	t.Run("gives up", func(t *testing.T) {
		blobs := &flakyBlobs{failures: 5}
		s := storage.NewImageStore(blobs, "/assets", 1, logging.Discard())
		_, err := s.Upload(ctx, []byte{1}, "x.png")
		assert.Error(t, err)
		assert.Equal(t, 2, blobs.calls)
	})

	t.Run("rejects", func(t *testing.T) {
		s := storage.NewImageStore(&flakyBlobs{}, "/assets", 0, logging.Discard())
		_, err := s.Upload(ctx, nil, "x.png")
		assert.Error(t, err)
		_, err = s.Upload(ctx, []byte{1}, "../x.png")
		assert.ErrorIs(t, err, storage.ErrInvalidKey)
	})
}
