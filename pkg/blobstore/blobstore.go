// Package blobstore is the attachment blob backing store, grounded on the
// teacher's pkg/repository/firestore construction pattern (a thin wrapper
// around a *cloud.google.com/go client, one bucket per deployment) — the
// same GCP project that backs C11's Firestore Metastore also holds the raw
// attachment bytes model.Attachment.BlobRef points at.
package blobstore

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
)

// Store implements interfaces.BlobStore over a single Cloud Storage bucket.
type Store struct {
	client *storage.Client
	bucket string
}

var _ interfaces.BlobStore = &Store{}

// New dials Cloud Storage using ambient application-default credentials,
// the same auth path the teacher's Firestore/Gemini clients rely on.
func New(ctx context.Context, bucket string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Put uploads data under objectPath, overwriting any existing object, and
// returns objectPath unchanged for the caller to persist as BlobRef.
func (s *Store) Put(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", goerr.Wrap(err, "write attachment blob", goerr.V("bucket", s.bucket), goerr.V("object", objectPath))
	}
	if err := w.Close(); err != nil {
		return "", goerr.Wrap(err, "close attachment blob writer", goerr.V("bucket", s.bucket), goerr.V("object", objectPath))
	}
	return objectPath, nil
}

// Get fetches a previously stored blob by its object path.
func (s *Store) Get(ctx context.Context, objectPath string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(objectPath).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "attachment blob not found", goerr.V("object", objectPath))
		}
		return nil, goerr.Wrap(err, "open attachment blob reader", goerr.V("bucket", s.bucket), goerr.V("object", objectPath))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "read attachment blob", goerr.V("object", objectPath))
	}
	return data, nil
}

// Close releases the underlying Cloud Storage client.
func (s *Store) Close() error {
	return s.client.Close()
}
