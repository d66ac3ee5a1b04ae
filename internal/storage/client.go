// Package storage holds captured frames and rendered exports in a MinIO
// bucket. Frames live under uploads/<job-id>/source and are written by the
// client through presigned PUTs; rendered outputs land under
// outputs/<job-id>/<step>.<ext>.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	framePrefix  = "uploads"
	outputPrefix = "outputs"
)

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	Bucket   string
	UseSSL   bool
}

type Client struct {
	minio  *minio.Client
	bucket string
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Client{minio: mc, bucket: cfg.Bucket}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

// FrameKey is the object key a job's source frame is uploaded to.
func FrameKey(jobID string) string {
	return framePrefix + "/" + jobID + "/source"
}

// OutputKey is the object key one rendered output is written to.
func OutputKey(jobID, name string) string {
	return outputPrefix + "/" + jobID + "/" + name
}

// EnsureBucket creates the bucket if it does not exist. A lost creation
// race against another instance counts as success.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minio.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		if exists, raceErr := c.minio.BucketExists(ctx, c.bucket); raceErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// PresignFrameUpload returns the frame's object key and a presigned PUT
// URL the uploader can use until the ttl expires.
func (c *Client) PresignFrameUpload(ctx context.Context, jobID string, ttl time.Duration) (string, string, error) {
	key := FrameKey(jobID)
	u, err := c.minio.PresignedPutObject(ctx, c.bucket, key, ttl)
	if err != nil {
		return "", "", fmt.Errorf("presign frame upload for job %s: %w", jobID, err)
	}
	return key, u.String(), nil
}

// FrameExists reports whether the uploader has actually put the source
// frame at the given key. A missing key is not an error.
func (c *Client) FrameExists(ctx context.Context, objectKey string) (bool, error) {
	_, err := c.minio.StatObject(ctx, c.bucket, objectKey, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat frame %s: %w", objectKey, err)
}

// ReadFrame fetches the full source frame for decoding.
func (c *Client) ReadFrame(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := c.minio.GetObject(ctx, c.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get frame %s: %w", objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", objectKey, err)
	}
	return data, nil
}

// WriteOutput stores one rendered output under the job's output prefix and
// returns the object key it was written to.
func (c *Client) WriteOutput(ctx context.Context, jobID, name, contentType string, data []byte) (string, error) {
	key := OutputKey(jobID, name)
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"Job-Id": jobID},
	}
	_, err := c.minio.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return "", fmt.Errorf("write output %s: %w", key, err)
	}
	return key, nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject"
}
