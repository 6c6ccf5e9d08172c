package bucket

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
)

// minioClient adapts minio.Core to the Client interface. It is grounded
// directly on the teacher's blob/s3blob package, which also drives
// minio.Core rather than the high-level Client: Core exposes the
// low-level per-request header control the conditional semantics of
// spec.md §4.4 need (the high-level Client only lets you set
// "x-amz-meta-*" metadata, not arbitrary conditional headers).
type minioClient struct {
	core   *minio.Core
	bucket string
}

// NewMinioClient wraps an existing minio.Core for bucket.
func NewMinioClient(core *minio.Core, bucketName string) Client {
	return &minioClient{core: core, bucket: bucketName}
}

func (c *minioClient) Head(ctx context.Context, name string) (*HeadResult, error) {
	info, err := c.core.StatObject(ctx, c.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &HeadResult{ETag: canonicalizeETag(info.ETag), Type: info.ContentType}, nil
}

func (c *minioClient) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, _, _, err := c.core.GetObject(ctx, c.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return rc, nil
}

func (c *minioClient) Put(ctx context.Context, name, contentType string, data io.Reader, size int64, ifMatchETag string, ifNoneMatch bool) (*PutResult, error) {
	headers := map[string]string{"Content-Type": contentType}
	if ifMatchETag != "" {
		headers["If-Match"] = ifMatchETag
	}
	if ifNoneMatch {
		headers["If-None-Match"] = "*"
	}
	info, err := c.core.PutObject(ctx, c.bucket, name, data, size, "", "", headers, nil)
	if err != nil {
		if isConflict(err) {
			return nil, nil
		}
		return nil, err
	}
	return &PutResult{ETag: canonicalizeETag(info.ETag)}, nil
}

func (c *minioClient) Delete(ctx context.Context, name, ifMatchETag string) (bool, error) {
	// RemoveObject has no conditional-header hook in minio-go; the caller
	// (backend/bucket.go) re-Heads under its own guard to approximate the
	// CAS check before calling Delete.
	_ = ifMatchETag
	err := c.core.RemoveObject(ctx, c.bucket, name, minio.RemoveObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *minioClient) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range c.core.Client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

func (c *minioClient) Copy(ctx context.Context, dst, src string) error {
	dstOpts := minio.CopyDestOptions{Bucket: c.bucket, Object: dst}
	srcOpts := minio.CopySrcOptions{Bucket: c.bucket, Object: src}
	_, err := c.core.Client.CopyObject(ctx, dstOpts, srcOpts)
	return err
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

func isConflict(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "PreconditionFailed" || resp.Code == "412" || resp.StatusCode == 412 || resp.StatusCode == 409
}
