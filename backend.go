package keep

import (
	"context"
	"io"
)

// Object is a blob read in full: its MimeType and bytes.
type Object struct {
	Type MimeType
	Data []byte
}

// StreamObject is a blob opened for streamed reading. The caller must Close
// the Body when done.
type StreamObject struct {
	Type MimeType
	Body io.ReadCloser
}

// ListIterator enumerates the ids stored in a Backend. Ordering is
// unspecified (§5); List is only guaranteed to reflect a running snapshot.
type ListIterator interface {
	// Next returns the next stored id, or (_, io.EOF) when done.
	Next(ctx context.Context) (ContentId, error)
}

// Backend is the uniform contract every base backend (Memory, Files,
// Bucket) and every codec wrapper (Compression, Secret, Asymmetric)
// implements. All operations are safe to call concurrently; mutations to
// the same id are serialized by the implementation (§5).
//
// Absent results are reported as a zero value with a nil error. A non-nil
// error always means a genuinely unexpected condition (§7); conflicts and
// not-found are never errors.
type Backend interface {
	// Token returns the current ConflictToken for id, or nil if id does
	// not exist.
	Token(ctx context.Context, id ContentId) (ConflictToken, error)

	// Exists reports whether id is currently stored.
	Exists(ctx context.Context, id ContentId) (bool, error)

	// List enumerates all stored ids.
	List(ctx context.Context) ListIterator

	// Type returns the MimeType stored under id, or "" if absent.
	Type(ctx context.Context, id ContentId) (MimeType, error)

	// Hash returns the stored-bytes hash (or ETag) for id, or "" if
	// absent.
	Hash(ctx context.Context, id ContentId) (string, error)

	// Read returns the full object stored at id, or nil if absent.
	Read(ctx context.Context, id ContentId) (*Object, error)

	// Write stores data under id with the given MimeType, gated by tok
	// per the CAS rule in §4.1: tok absent requires id to not exist; tok
	// present requires id's current hash to equal tok's value. Returns
	// false (not an error) on a gate failure.
	Write(ctx context.Context, id ContentId, data []byte, typ MimeType, tok ConflictToken) (bool, error)

	// Delete removes id, gated by tok matching the current hash. Returns
	// false (not an error) on a gate failure.
	Delete(ctx context.Context, id ContentId, tok ConflictToken) (bool, error)

	// ReadStream opens id for streamed reading, or returns (nil, nil) if
	// absent.
	ReadStream(ctx context.Context, id ContentId) (*StreamObject, error)

	// WriteStream streams r to id under the same CAS rule as Write.
	WriteStream(ctx context.Context, id ContentId, r io.Reader, typ MimeType, tok ConflictToken) (bool, error)

	// Rename moves the stored object at source to target without
	// rehashing. Succeeds iff source exists and target does not.
	Rename(ctx context.Context, source, target ContentId) (bool, error)

	// Close releases any resources held by the backend.
	Close() error
}
