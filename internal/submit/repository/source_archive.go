package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"codejudge/internal/common/storage"

	"github.com/klauspost/compress/zstd"
)

const (
	sourceObjectPrefix = "submissions/"
	sourceObjectSuffix = "/source.zst"
	sourceContentType  = "application/zstd"
)

// SourceArchive keeps a compressed copy of every submitted program.
type SourceArchive interface {
	Archive(ctx context.Context, submissionID, source string) (string, error)
}

// ObjectSourceArchive stores zstd-compressed sources in an object bucket.
type ObjectSourceArchive struct {
	storage storage.ObjectStorage
	bucket  string
	encoder *zstd.Encoder
}

func NewObjectSourceArchive(objectStorage storage.ObjectStorage, bucket string) (*ObjectSourceArchive, error) {
	if objectStorage == nil {
		return nil, errors.New("object storage is nil")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %w", err)
	}
	return &ObjectSourceArchive{
		storage: objectStorage,
		bucket:  bucket,
		encoder: encoder,
	}, nil
}

// Archive uploads the compressed source and returns its object key.
func (a *ObjectSourceArchive) Archive(ctx context.Context, submissionID, source string) (string, error) {
	if submissionID == "" {
		return "", errors.New("submissionID is required")
	}
	key := SourceObjectKey(submissionID)
	compressed := a.encoder.EncodeAll([]byte(source), nil)
	if err := a.storage.PutObject(ctx, a.bucket, key, bytes.NewReader(compressed), int64(len(compressed)), sourceContentType); err != nil {
		return "", err
	}
	return key, nil
}

// SourceObjectKey is submissions/<id>/source.zst.
func SourceObjectKey(submissionID string) string {
	return sourceObjectPrefix + submissionID + sourceObjectSuffix
}
