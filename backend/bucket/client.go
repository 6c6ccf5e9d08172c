package bucket

import (
	"context"
	"io"
)

// HeadResult is what Client.Head reports for an existing object.
type HeadResult struct {
	ETag string
	Type string
}

// PutResult is what Client.Put reports after a successful write.
type PutResult struct {
	ETag string
}

// Client is the narrow surface backend/bucket needs from an S3-compatible
// object store. Per spec.md §1/§6, the HTTP client itself is an external
// collaborator — we only specify the interface the core requires from it.
// ifMatchETag/ifNoneMatch implement the conditional semantics of §4.4:
// a non-empty ifMatchETag requires the object to currently have that ETag;
// ifNoneMatch requires the object to not exist at all.
type Client interface {
	// Head returns the current ETag and content type for name, or
	// (nil, nil) if the object does not exist.
	Head(ctx context.Context, name string) (*HeadResult, error)

	// Get returns the object body, or (nil, nil) if it does not exist.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Put uploads data under name with the given content type. If
	// ifMatchETag is non-empty, the write is conditioned on the object's
	// current ETag equaling it. If ifNoneMatch is true, the write is
	// conditioned on the object not existing. A conditional mismatch
	// (412/409) is reported as (nil, nil), not an error.
	Put(ctx context.Context, name, contentType string, data io.Reader, size int64, ifMatchETag string, ifNoneMatch bool) (*PutResult, error)

	// Delete removes name, conditioned on its ETag equaling ifMatchETag
	// (required, never empty). A conditional mismatch is reported as
	// (false, nil).
	Delete(ctx context.Context, name, ifMatchETag string) (bool, error)

	// List enumerates object keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Copy copies src to dst within the same bucket.
	Copy(ctx context.Context, dst, src string) error
}
