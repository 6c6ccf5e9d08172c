// Package compress implements the transparent compression wrapper Backend
// of spec.md §4.5: it compresses whole buffers (or pipes streams through a
// codec transform) on write, and decompresses on read. Identifiers and
// tokens pass through unchanged; only bytes at rest change.
package compress

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/thatique/keep"
)

// Codec selects the compression algorithm used by a wrapper instance. A
// wrapper is configured with exactly one codec at construction time
// (spec.md §4.5); operators must use the same codec on both ends of a
// given base backend's lifetime.
type Codec int

const (
	// Deflate uses stdlib compress/flate.
	Deflate Codec = iota
	// Gzip uses stdlib compress/gzip.
	Gzip
	// Brotli uses github.com/andybalholm/brotli.
	Brotli
	// Zstd uses github.com/klauspost/compress/zstd.
	Zstd
)

// Backend wraps an inner keep.Backend, compressing bytes at rest under the
// configured Codec.
type Backend struct {
	inner keep.Backend
	codec Codec
}

var _ keep.Backend = (*Backend)(nil)

// New wraps inner with a compression codec.
func New(inner keep.Backend, codec Codec) *Backend {
	return &Backend{inner: inner, codec: codec}
}

func (b *Backend) Token(ctx context.Context, id keep.ContentId) (keep.ConflictToken, error) {
	return b.inner.Token(ctx, id)
}

func (b *Backend) Exists(ctx context.Context, id keep.ContentId) (bool, error) {
	return b.inner.Exists(ctx, id)
}

func (b *Backend) List(ctx context.Context) keep.ListIterator {
	return b.inner.List(ctx)
}

func (b *Backend) Type(ctx context.Context, id keep.ContentId) (keep.MimeType, error) {
	return b.inner.Type(ctx, id)
}

func (b *Backend) Hash(ctx context.Context, id keep.ContentId) (string, error) {
	return b.inner.Hash(ctx, id)
}

func (b *Backend) Read(ctx context.Context, id keep.ContentId) (*keep.Object, error) {
	obj, err := b.inner.Read(ctx, id)
	if err != nil || obj == nil {
		return obj, err
	}
	plain, err := b.decompress(obj.Data)
	if err != nil {
		return nil, err
	}
	return &keep.Object{Type: obj.Type, Data: plain}, nil
}

func (b *Backend) Write(ctx context.Context, id keep.ContentId, data []byte, typ keep.MimeType, tok keep.ConflictToken) (bool, error) {
	compressed, err := b.compress(data)
	if err != nil {
		return false, err
	}
	return b.inner.Write(ctx, id, compressed, typ, tok)
}

func (b *Backend) Delete(ctx context.Context, id keep.ContentId, tok keep.ConflictToken) (bool, error) {
	return b.inner.Delete(ctx, id, tok)
}

func (b *Backend) ReadStream(ctx context.Context, id keep.ContentId) (*keep.StreamObject, error) {
	obj, err := b.inner.ReadStream(ctx, id)
	if err != nil || obj == nil {
		return obj, err
	}
	r, err := b.decompressReader(obj.Body)
	if err != nil {
		obj.Body.Close()
		return nil, err
	}
	return &keep.StreamObject{Type: obj.Type, Body: r}, nil
}

func (b *Backend) WriteStream(ctx context.Context, id keep.ContentId, r io.Reader, typ keep.MimeType, tok keep.ConflictToken) (bool, error) {
	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() {
		err := b.compressTo(pw, r)
		pw.CloseWithError(err)
		errCh <- err
	}()
	ok, err := b.inner.WriteStream(ctx, id, pr, typ, tok)
	if cerr := <-errCh; cerr != nil && err == nil {
		err = cerr
	}
	return ok, err
}

func (b *Backend) Rename(ctx context.Context, source, target keep.ContentId) (bool, error) {
	return b.inner.Rename(ctx, source, target)
}

func (b *Backend) Close() error { return b.inner.Close() }

// compress returns the codec-compressed form of plain.
func (b *Backend) compress(plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := b.compressTo(&buf, bytes.NewReader(plain)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Backend) compressTo(w io.Writer, r io.Reader) error {
	switch b.codec {
	case Deflate:
		fw, err := flate.NewWriter(w, flate.DefaultCompression)
		if err != nil {
			return err
		}
		if _, err := io.Copy(fw, r); err != nil {
			fw.Close()
			return err
		}
		return fw.Close()
	case Gzip:
		gw := gzip.NewWriter(w)
		if _, err := io.Copy(gw, r); err != nil {
			gw.Close()
			return err
		}
		return gw.Close()
	case Brotli:
		bw := brotli.NewWriter(w)
		if _, err := io.Copy(bw, r); err != nil {
			bw.Close()
			return err
		}
		return bw.Close()
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := io.Copy(zw, r); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	default:
		_, err := io.Copy(w, r)
		return err
	}
}

func (b *Backend) decompress(compressed []byte) ([]byte, error) {
	r, err := b.decompressReader(io.NopCloser(bytes.NewReader(compressed)))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *Backend) decompressReader(body io.ReadCloser) (io.ReadCloser, error) {
	switch b.codec {
	case Deflate:
		return struct {
			io.Reader
			io.Closer
		}{flate.NewReader(body), body}, nil
	case Gzip:
		gr, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{gr, body}, nil
	case Brotli:
		return struct {
			io.Reader
			io.Closer
		}{brotli.NewReader(body), body}, nil
	case Zstd:
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{zr.IOReadCloser(), body}, nil
	default:
		return body, nil
	}
}
