package frontend

import (
	"context"
	"encoding/json"
	"io"

	"github.com/thatique/keep"
)

// now is overridable in tests; production callers get the wall clock.
var now = func() int64 { return nowMillis() }

// Set materializes data as the new content for name and appends a tag
// record pointing to it, CAS-gated on tok (spec.md §4.8 steps 1-4). tok
// should be the value previously returned by Token(ctx, name), or nil to
// require name to not have been written yet.
func (f *Frontend) Set(ctx context.Context, name string, data []byte, typ keep.MimeType, tok keep.ConflictToken) (bool, error) {
	cid, err := f.Push(ctx, data, typ)
	if err != nil {
		return false, err
	}
	if cid == "" {
		return false, nil
	}
	return f.advance(ctx, name, &cid, typ, tok)
}

// WriteStream is Set for a streamed body.
func (f *Frontend) WriteStream(ctx context.Context, name string, r io.Reader, typ keep.MimeType, tok keep.ConflictToken) (bool, error) {
	cid, err := f.PushStream(ctx, r, typ)
	if err != nil {
		return false, err
	}
	if cid == "" {
		return false, nil
	}
	return f.advance(ctx, name, &cid, typ, tok)
}

// Copy points m at n's current content (cid and type), without mutating
// n's current tag. It fails (false, nil) if n has never been written.
func (f *Frontend) Copy(ctx context.Context, n, m string, tok keep.ConflictToken) (bool, error) {
	src, err := f.Tag(ctx, n)
	if err != nil {
		return false, err
	}
	if src == nil || src.Cid == nil {
		return false, nil
	}
	return f.advance(ctx, m, src.Cid, src.Type, tok)
}

// Delete writes a tombstone tag record for name (cid=nil,
// type=application/empty). Subsequent Has(name) is false, but Tags(name)
// still walks prior history through the tombstone's Pre link.
func (f *Frontend) Delete(ctx context.Context, name string, tok keep.ConflictToken) (bool, error) {
	return f.advance(ctx, name, nil, keep.MimeTombstone, tok)
}

// advance implements the shared shape of Set/WriteStream/Copy/Delete
// (spec.md §4.8):
//  1. content already materialized by the caller (cid, typ)
//  2. read the current pointer body at nid -> pre
//  3. build and push the new tag record
//  4. CAS-write nid with the new tag's id, gated on tok
func (f *Frontend) advance(ctx context.Context, name string, cid *keep.ContentId, typ keep.MimeType, tok keep.ConflictToken) (bool, error) {
	nid := nameID(name)
	pre, err := f.pointerBody(ctx, name)
	if err != nil {
		return false, err
	}
	var prePtr *keep.ContentId
	if pre != "" {
		p := pre
		prePtr = &p
	}

	tagData, err := json.Marshal(Tag{
		Name: name,
		Cid:  cid,
		Type: typ,
		Date: now(),
		Pre:  prePtr,
	})
	if err != nil {
		return false, err
	}
	tid, err := f.Push(ctx, tagData, keep.MimeJSON)
	if err != nil {
		return false, err
	}
	if tid == "" {
		return false, nil
	}

	ok, err := f.b.Write(ctx, nid, []byte(tid), keep.MimeSHA512Pointer, tok)
	if err != nil {
		return false, err
	}
	return ok, nil
}
