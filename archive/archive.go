// Package archive stores forwarded posts in S3-compatible object storage.
//
// Posts are content-addressed: each message is stored under the hex BLAKE3
// hash of its raw bytes, so a message reprocessed after a partial poll
// cycle is archived exactly once.
package archive

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/migadu/ezlist/config"
	"github.com/migadu/ezlist/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"lukechampine.com/blake3"
)

// S3Archive writes raw posts to a bucket.
type S3Archive struct {
	client *minio.Client
	bucket string
}

// New initializes the S3 client. The bucket must already exist.
func New(cfg config.ArchiveConfig) (*S3Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	if cfg.Trace {
		client.TraceOn(os.Stdout)
	}

	return &S3Archive{client: client, bucket: cfg.Bucket}, nil
}

// StorePost uploads the raw message under its content hash. Uploading a
// message that is already archived is a no-op.
func (a *S3Archive) StorePost(ctx context.Context, raw []byte) error {
	sum := blake3.Sum256(raw)
	key := hex.EncodeToString(sum[:])

	exists, err := a.exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		logger.Debug("Archive: post already stored", "key", key)
		return nil
	}

	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "message/rfc822",
	})
	if err != nil {
		return fmt.Errorf("failed to upload post %s: %w", key, err)
	}

	logger.Debug("Archive: stored post", "key", key, "size", len(raw))
	return nil
}

func (a *S3Archive) exists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	var errResp minio.ErrorResponse
	if errors.As(err, &errResp) && errResp.Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat post %s: %w", key, err)
}
