package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const imagePrefix = "images/"

// ImageStore turns uploaded image bytes into durable URLs under baseURL.
type ImageStore struct {
	blobs      BlobStore
	baseURL    string
	maxRetries int
	log        logrus.FieldLogger
}

func NewImageStore(blobs BlobStore, baseURL string, maxRetries int, log logrus.FieldLogger) *ImageStore {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ImageStore{blobs: blobs, baseURL: strings.TrimSuffix(baseURL, "/"), maxRetries: maxRetries, log: log}
}

// Upload stores data as images/<filename> and returns its URL.
func (s *ImageStore) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty image")
	}
	if filename == "" || strings.ContainsAny(filename, "/\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, filename)
	}

	var key string
	op := func() error {
		k, err := s.blobs.Put(ctx, imagePrefix+filename, bytes.NewReader(data))
		if errors.Is(err, ErrInvalidKey) {
			return backoff.Permanent(err)
		}
		key = k
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second
	notify := func(err error, wait time.Duration) {
		s.log.WithError(err).WithFields(logrus.Fields{"filename": filename, "wait": wait}).Warn("image upload retry")
	}
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.maxRetries)), ctx), notify)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}
	return s.URL(key), nil
}

// URL maps a blob key to its public address.
func (s *ImageStore) URL(key string) string {
	return s.baseURL + "/" + key
}
