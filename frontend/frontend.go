// Package frontend implements the name/tag layer of spec.md §4.8: content
// addressing (push/pull), and mutable versioned names built as an
// append-only chain of immutable tag records, indirected through a
// deterministic name-identifier. It is built entirely on keep.Backend and
// never bypasses it.
package frontend

import (
	"context"
	"crypto/sha512"
	"encoding/json"
	"io"

	"github.com/google/uuid"
	"github.com/thatique/keep"
	"github.com/thatique/keep/verr"
)

// Frontend is the naming/history façade over a single keep.Backend.
type Frontend struct {
	b keep.Backend
}

// New returns a Frontend built on b.
func New(b keep.Backend) *Frontend {
	return &Frontend{b: b}
}

// Push stores data content-addressed, returning its ContentId. Push is
// idempotent: pushing the same bytes twice returns the same id both
// times, the second call being a harmless no-op write.
func (f *Frontend) Push(ctx context.Context, data []byte, typ keep.MimeType) (keep.ContentId, error) {
	if typ == "" {
		typ = keep.MimeOctetStream
	}
	cid := keep.ContentIDOf(data)
	tok, err := f.b.Token(ctx, cid)
	if err != nil {
		return "", err
	}
	ok, err := f.b.Write(ctx, cid, data, typ, tok)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return cid, nil
}

// Pull returns the bytes stored at cid, or nil if absent.
func (f *Frontend) Pull(ctx context.Context, cid keep.ContentId) ([]byte, error) {
	obj, err := f.b.Read(ctx, cid)
	if err != nil || obj == nil {
		return nil, err
	}
	return obj.Data, nil
}

// hashingReader computes the SHA-512 digest of everything read through it.
type hashingReader struct {
	r io.Reader
	h interface {
		io.Writer
		Sum(b []byte) []byte
	}
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
	}
	return n, err
}

// PushStream streams r into the backend, computing its ContentId as it
// goes, then renames the temporary object into place under the computed
// id (spec.md §4.8) so that a partially-written object never becomes
// visible under its final id.
func (f *Frontend) PushStream(ctx context.Context, r io.Reader, typ keep.MimeType) (keep.ContentId, error) {
	if typ == "" {
		typ = keep.MimeOctetStream
	}
	tmp := keep.NameID(uuid.NewString())
	hr := &hashingReader{r: r, h: sha512.New()}
	ok, err := f.b.WriteStream(ctx, tmp, hr, typ, nil)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	cid := keep.ContentId(hexEncode(hr.h.Sum(nil)))
	ok, err = f.b.Rename(ctx, tmp, cid)
	if err != nil {
		return "", err
	}
	if !ok {
		// cid may already hold these exact bytes (content addressing), in
		// which case it is reported just as Push reports repeated content.
		// The staging object under tmp is left in place.
		exists, err := f.b.Exists(ctx, cid)
		if err != nil || !exists {
			return "", err
		}
	}
	return cid, nil
}

// PullStream opens cid for streamed reading, or returns (nil, nil) if
// absent.
func (f *Frontend) PullStream(ctx context.Context, cid keep.ContentId) (io.ReadCloser, error) {
	obj, err := f.b.ReadStream(ctx, cid)
	if err != nil || obj == nil {
		return nil, err
	}
	return obj.Body, nil
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

// nameID returns the deterministic pointer-slot id for name.
func nameID(name string) keep.ContentId { return keep.NameID(name) }

// pointerBody reads the current ContentId stored at the name-pointer slot
// for name, or ("", nil) if the name has never been written.
func (f *Frontend) pointerBody(ctx context.Context, name string) (keep.ContentId, error) {
	obj, err := f.b.Read(ctx, nameID(name))
	if err != nil || obj == nil {
		return "", err
	}
	return keep.ContentId(obj.Data), nil
}

// Tag returns the current tag record for name, or nil if name has never
// been written.
func (f *Frontend) Tag(ctx context.Context, name string) (*Tag, error) {
	tid, err := f.pointerBody(ctx, name)
	if err != nil || tid == "" {
		return nil, err
	}
	return f.readTag(ctx, tid)
}

func (f *Frontend) readTag(ctx context.Context, tid keep.ContentId) (*Tag, error) {
	obj, err := f.b.Read(ctx, tid)
	if err != nil || obj == nil {
		return nil, err
	}
	var t Tag
	if err := json.Unmarshal(obj.Data, &t); err != nil {
		return nil, verr.Newf(verr.Internal, err, "frontend: corrupt tag record %s", tid)
	}
	return &t, nil
}

// Tags returns a lazy, finite, reverse-chronological sequence of every tag
// record for name, terminating at the first-ever tag (whose Pre is nil).
func (f *Frontend) Tags(ctx context.Context, name string) func(yield func(*Tag, error) bool) {
	return func(yield func(*Tag, error) bool) {
		tid, err := f.pointerBody(ctx, name)
		if err != nil {
			yield(nil, err)
			return
		}
		for tid != "" {
			t, err := f.readTag(ctx, tid)
			if err != nil {
				yield(nil, err)
				return
			}
			if t == nil {
				return
			}
			if !yield(t, nil) {
				return
			}
			if t.Pre == nil {
				return
			}
			tid = *t.Pre
		}
	}
}

// Has reports whether name currently points to live content (i.e. its
// current tag is not a tombstone).
func (f *Frontend) Has(ctx context.Context, name string) (bool, error) {
	t, err := f.Tag(ctx, name)
	if err != nil || t == nil {
		return false, err
	}
	return t.Cid != nil, nil
}

// Get returns the bytes the name currently points to, or nil if absent.
func (f *Frontend) Get(ctx context.Context, name string) ([]byte, error) {
	t, err := f.Tag(ctx, name)
	if err != nil || t == nil || t.Cid == nil {
		return nil, err
	}
	return f.Pull(ctx, *t.Cid)
}

// Text is Get decoded as a UTF-8 string.
func (f *Frontend) Text(ctx context.Context, name string) (string, error) {
	data, err := f.Get(ctx, name)
	if err != nil || data == nil {
		return "", err
	}
	return string(data), nil
}

// JSON unmarshals Get's result into v.
func (f *Frontend) JSON(ctx context.Context, name string, v interface{}) (bool, error) {
	data, err := f.Get(ctx, name)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, verr.Newf(verr.Internal, err, "frontend: JSON(%q)", name)
	}
	return true, nil
}

// Token returns the ConflictToken for name's pointer slot (not the tag
// blob, not the content blob), for use as the tok argument to Set/
// WriteStream/Copy/Delete.
func (f *Frontend) Token(ctx context.Context, name string) (keep.ConflictToken, error) {
	return f.b.Token(ctx, nameID(name))
}
