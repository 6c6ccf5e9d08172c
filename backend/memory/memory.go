// Package memory implements an in-process Backend backed by a map. It is
// the reference implementation of the Backend contract (spec.md §4.2):
// every invariant in spec.md §8 holds here first.
package memory

import (
	"context"
	"io"
	"sync"

	"github.com/thatique/keep"
)

type entry struct {
	typ  keep.MimeType
	hash string
	data []byte
}

// Backend is an in-memory Backend. The zero value is not usable; use New.
type Backend struct {
	mu      sync.Mutex
	objects map[keep.ContentId]entry
	closed  bool
}

var _ keep.Backend = (*Backend)(nil)

// New returns an empty in-memory Backend.
func New() *Backend {
	return &Backend{objects: make(map[keep.ContentId]entry)}
}

func (b *Backend) Token(ctx context.Context, id keep.ContentId) (keep.ConflictToken, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.objects[id]
	if !ok {
		return nil, nil
	}
	return keep.NewToken(b, e.hash), nil
}

func (b *Backend) Exists(ctx context.Context, id keep.ContentId) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[id]
	return ok, nil
}

func (b *Backend) Type(ctx context.Context, id keep.ContentId) (keep.MimeType, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.objects[id]
	if !ok {
		return "", nil
	}
	return e.typ, nil
}

func (b *Backend) Hash(ctx context.Context, id keep.ContentId) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.objects[id]
	if !ok {
		return "", nil
	}
	return e.hash, nil
}

func (b *Backend) Read(ctx context.Context, id keep.ContentId) (*keep.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.objects[id]
	if !ok {
		return nil, nil
	}
	data := make([]byte, len(e.data))
	copy(data, e.data)
	return &keep.Object{Type: e.typ, Data: data}, nil
}

func (b *Backend) Write(ctx context.Context, id keep.ContentId, data []byte, typ keep.MimeType, tok keep.ConflictToken) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeLocked(id, data, typ, tok)
}

// writeLocked performs the CAS gate described in spec.md §4.1. Callers must
// hold b.mu.
func (b *Backend) writeLocked(id keep.ContentId, data []byte, typ keep.MimeType, tok keep.ConflictToken) (bool, error) {
	cur, exists := b.objects[id]
	if tok == nil {
		if exists {
			return false, nil
		}
	} else {
		want, ok := keep.TokenValue(b, tok)
		if !ok || !exists || want != cur.hash {
			return false, nil
		}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	b.objects[id] = entry{typ: typ, hash: hashOf(buf), data: buf}
	return true, nil
}

func (b *Backend) Delete(ctx context.Context, id keep.ContentId, tok keep.ConflictToken) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, exists := b.objects[id]
	if !exists {
		return false, nil
	}
	want, ok := keep.TokenValue(b, tok)
	if !ok || want != cur.hash {
		return false, nil
	}
	delete(b.objects, id)
	return true, nil
}

type streamReader struct {
	io.Reader
}

func (streamReader) Close() error { return nil }

func (b *Backend) ReadStream(ctx context.Context, id keep.ContentId) (*keep.StreamObject, error) {
	obj, err := b.Read(ctx, id)
	if err != nil || obj == nil {
		return nil, err
	}
	return &keep.StreamObject{
		Type: obj.Type,
		Body: streamReader{bytesReader(obj.Data)},
	}, nil
}

// WriteStream buffers the entire stream then performs Write, as specified
// in spec.md §4.2.
func (b *Backend) WriteStream(ctx context.Context, id keep.ContentId, r io.Reader, typ keep.MimeType, tok keep.ConflictToken) (bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return false, err
	}
	return b.Write(ctx, id, data, typ, tok)
}

func (b *Backend) Rename(ctx context.Context, source, target keep.ContentId) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[target]; ok {
		return false, nil
	}
	e, ok := b.objects[source]
	if !ok {
		return false, nil
	}
	b.objects[target] = e
	delete(b.objects, source)
	return true, nil
}

func (b *Backend) List(ctx context.Context) keep.ListIterator {
	b.mu.Lock()
	ids := make([]keep.ContentId, 0, len(b.objects))
	for id := range b.objects {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	return &listIterator{ids: ids}
}

type listIterator struct {
	ids []keep.ContentId
	idx int
}

func (it *listIterator) Next(ctx context.Context) (keep.ContentId, error) {
	if it.idx >= len(it.ids) {
		return "", io.EOF
	}
	id := it.ids[it.idx]
	it.idx++
	return id, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
