// Package files implements the filesystem Backend described in spec.md
// §4.3: each id maps to a sibling pair of files (bytes + ".data" JSON
// metadata), with token-gated overwrite serialized through keep/lock.
// It is grounded on the teacher's blob/fileblob package (a JSON sidecar
// file for attributes, default directory/file permissions), generalized
// to add CAS semantics; unlike fileblob, writes go directly to the
// destination path via O_EXCL/O_TRUNC rather than through a temp file.
package files

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/thatique/keep"
	"github.com/thatique/keep/lock"
	"github.com/thatique/keep/verr"
)

const sidecarExt = ".data"

// lockTimeout is the §4.3 30-second window for token-gated writes.
const lockTimeout = 30 * time.Second

// Options configures a Backend.
type Options struct {
	// DirMode is the permission used for directories created under Root.
	// Defaults to 0777, matching the teacher's fileblob.
	DirMode os.FileMode
	// FileMode is the permission used for data and sidecar files.
	// Defaults to 0666.
	FileMode os.FileMode
	// LockDir is where advisory lock files are created. Defaults to
	// os.TempDir(), matching spec.md §4.9's "/tmp/<sha1(name)>.lock".
	LockDir string
	// Log receives warnings for unexpected (non-absent, non-conflict)
	// failures. If nil, no logging is performed.
	Log *zerolog.Logger
}

func (o *Options) dirMode() os.FileMode {
	if o == nil || o.DirMode == 0 {
		return 0o777
	}
	return o.DirMode
}

func (o *Options) fileMode() os.FileMode {
	if o == nil || o.FileMode == 0 {
		return 0o666
	}
	return o.FileMode
}

func (o *Options) lockDir() string {
	if o == nil || o.LockDir == "" {
		return os.TempDir()
	}
	return o.LockDir
}

// sidecar is the JSON metadata document stored alongside each blob, per
// spec.md §6 ("<root>/h1/.../<full-id>.data").
type sidecar struct {
	Type keep.MimeType `json:"type"`
	Hash string        `json:"hash"`
}

// Backend is a filesystem-backed Backend rooted at a directory.
type Backend struct {
	root string
	opts Options
}

var _ keep.Backend = (*Backend)(nil)

// New creates a Backend rooted at root, which must already exist.
func New(root string, opts *Options) (*Backend, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, verr.Newf(verr.InvalidArgument, nil, "files: %s is not a directory", root)
	}
	var o Options
	if opts != nil {
		o = *opts
	}
	return &Backend{root: root, opts: o}, nil
}

// warn logs an unexpected failure. A lock timeout (verr.Aborted, raised by
// lock.AwaitTimeout) is expected under contention and logged at Info;
// anything else is logged at Warn.
func (b *Backend) warn(err error, msg string) {
	if b.opts.Log == nil {
		return
	}
	if verr.Code(err) == verr.Aborted {
		b.opts.Log.Info().Err(err).Msg(msg)
		return
	}
	b.opts.Log.Warn().Err(err).Msg(msg)
}

// wrapError classifies an unexpected os error through ErrorCode and wraps
// it in *verr.Error, mirroring the teacher's blob.wrapError (driver.Bucket.
// ErrorCode feeding verr.New). Context errors and io.EOF pass through
// unwrapped per verr.DoNotWrap, since callers may be matching on those
// directly (e.g. context.Canceled from a caller-supplied ctx).
func (b *Backend) wrapError(err error) error {
	if err == nil {
		return nil
	}
	var already *verr.Error
	if errors.As(err, &already) || verr.DoNotWrap(err) {
		return err
	}
	return verr.New(b.ErrorCode(err), err, 2, "files")
}

// path returns the data-file path for id; segs mirrors spec.md §3's
// h/h/h/h/h/h/<full-id> layout.
func (b *Backend) path(id keep.ContentId) string {
	segs := keep.PathSegments(id)
	parts := append([]string{b.root}, segs...)
	return filepath.Join(parts...)
}

func (b *Backend) lockName(id keep.ContentId) string {
	return string(id)
}

func (b *Backend) readSidecar(path string) (*sidecar, error) {
	raw, err := os.ReadFile(path + sidecarExt)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, b.wrapError(err)
	}
	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, verr.Newf(verr.Internal, err, "files: corrupt metadata %s", path+sidecarExt)
	}
	return &sc, nil
}

func (b *Backend) Token(ctx context.Context, id keep.ContentId) (keep.ConflictToken, error) {
	path := b.path(id)
	sc, err := b.readSidecar(path)
	if err != nil {
		b.warn(err, "files: Token")
		return nil, err
	}
	if sc == nil {
		return nil, nil
	}
	return keep.NewToken(b, sc.Hash), nil
}

func (b *Backend) Exists(ctx context.Context, id keep.ContentId) (bool, error) {
	_, err := os.Stat(b.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, b.wrapError(err)
	}
	return true, nil
}

func (b *Backend) Type(ctx context.Context, id keep.ContentId) (keep.MimeType, error) {
	sc, err := b.readSidecar(b.path(id))
	if err != nil || sc == nil {
		return "", err
	}
	return sc.Type, nil
}

func (b *Backend) Hash(ctx context.Context, id keep.ContentId) (string, error) {
	sc, err := b.readSidecar(b.path(id))
	if err != nil || sc == nil {
		return "", err
	}
	return sc.Hash, nil
}

func (b *Backend) Read(ctx context.Context, id keep.ContentId) (*keep.Object, error) {
	path := b.path(id)
	sc, err := b.readSidecar(path)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, b.wrapError(err)
	}
	return &keep.Object{Type: sc.Type, Data: data}, nil
}

// writeFiles writes both sibling files for id, opening each with flag
// (O_EXCL to create, O_TRUNC to rewrite). Callers must hold
// the appropriate lock (or be performing the lock-free create path).
func (b *Backend) writeFiles(id keep.ContentId, data []byte, typ keep.MimeType, flag int) (string, error) {
	path := b.path(id)
	if err := os.MkdirAll(filepath.Dir(path), b.opts.dirMode()); err != nil {
		return "", err
	}
	sum := sha512.Sum512(data)
	hash := hex.EncodeToString(sum[:])

	f, err := os.OpenFile(path, flag, b.opts.fileMode())
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	raw, err := json.Marshal(sidecar{Type: typ, Hash: hash})
	if err != nil {
		return "", err
	}
	sf, err := os.OpenFile(path+sidecarExt, flag, b.opts.fileMode())
	if err != nil {
		return "", err
	}
	if _, err := sf.Write(raw); err != nil {
		sf.Close()
		return "", err
	}
	if err := sf.Close(); err != nil {
		return "", err
	}
	return hash, nil
}

func (b *Backend) Write(ctx context.Context, id keep.ContentId, data []byte, typ keep.MimeType, tok keep.ConflictToken) (bool, error) {
	if tok == nil {
		// Atomic creation without a token: exclusive-create both files,
		// failing (as a conflict, not an error) if the blob already
		// exists (spec.md §4.3).
		_, err := b.writeFiles(id, data, typ, os.O_CREATE|os.O_EXCL|os.O_WRONLY)
		if err != nil {
			if os.IsExist(err) {
				return false, nil
			}
			b.warn(err, "files: Write create")
			return false, b.wrapError(err)
		}
		return true, nil
	}

	h, err := lock.AwaitTimeout(ctx, b.opts.lockDir(), b.lockName(id), lockTimeout)
	if err != nil {
		b.warn(err, "files: Write lock")
		return false, b.wrapError(err)
	}
	defer h.Release()

	want, ok := keep.TokenValue(b, tok)
	if !ok {
		return false, nil
	}
	curHash, err := b.Hash(ctx, id)
	if err != nil {
		return false, err
	}
	if curHash != want {
		return false, nil
	}
	if _, err := b.writeFiles(id, data, typ, os.O_CREATE|os.O_TRUNC|os.O_WRONLY); err != nil {
		b.warn(err, "files: Write rewrite")
		return false, b.wrapError(err)
	}
	return true, nil
}

func (b *Backend) Delete(ctx context.Context, id keep.ContentId, tok keep.ConflictToken) (bool, error) {
	h, err := lock.AwaitTimeout(ctx, b.opts.lockDir(), b.lockName(id), lockTimeout)
	if err != nil {
		b.warn(err, "files: Delete lock")
		return false, b.wrapError(err)
	}
	defer h.Release()

	want, ok := keep.TokenValue(b, tok)
	if !ok {
		return false, nil
	}
	curHash, err := b.Hash(ctx, id)
	if err != nil {
		return false, err
	}
	if curHash == "" || curHash != want {
		return false, nil
	}
	path := b.path(id)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		b.warn(err, "files: Delete unlink")
		return false, b.wrapError(err)
	}
	if err := os.Remove(path + sidecarExt); err != nil && !os.IsNotExist(err) {
		b.warn(err, "files: Delete unlink sidecar")
		return false, b.wrapError(err)
	}
	return true, nil
}

type fileStream struct {
	f *os.File
}

func (s *fileStream) Read(p []byte) (int, error) { return s.f.Read(p) }
func (s *fileStream) Close() error                { return s.f.Close() }

func (b *Backend) ReadStream(ctx context.Context, id keep.ContentId) (*keep.StreamObject, error) {
	path := b.path(id)
	sc, err := b.readSidecar(path)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, b.wrapError(err)
	}
	return &keep.StreamObject{Type: sc.Type, Body: &fileStream{f: f}}, nil
}

func (b *Backend) WriteStream(ctx context.Context, id keep.ContentId, r io.Reader, typ keep.MimeType, tok keep.ConflictToken) (bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return false, b.wrapError(err)
	}
	return b.Write(ctx, id, data, typ, tok)
}

func (b *Backend) Rename(ctx context.Context, source, target keep.ContentId) (bool, error) {
	srcPath := b.path(source)
	dstPath := b.path(target)
	if _, err := os.Stat(srcPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, b.wrapError(err)
	}
	if _, err := os.Stat(dstPath); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, b.wrapError(err)
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), b.opts.dirMode()); err != nil {
		return false, b.wrapError(err)
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return false, b.wrapError(err)
	}
	if err := os.Rename(srcPath+sidecarExt, dstPath+sidecarExt); err != nil {
		// Best-effort rollback of the bytes file so we don't leave the
		// pair split across ids.
		_ = os.Rename(dstPath, srcPath)
		return false, b.wrapError(err)
	}
	return true, nil
}

func (b *Backend) List(ctx context.Context) keep.ListIterator {
	var ids []keep.ContentId
	_ = filepath.Walk(b.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || strings.HasSuffix(path, sidecarExt) {
			return nil
		}
		rel, rerr := filepath.Rel(b.root, path)
		if rerr != nil {
			return nil
		}
		id := filepath.Base(rel)
		if cid, verr := keep.NewContentID(id); verr == nil {
			ids = append(ids, cid)
		}
		return nil
	})
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

func (b *Backend) Close() error { return nil }

// ErrorCode classifies an error returned from an os call so that callers
// building on top of Backend (e.g. the Frontend) can surface it through
// verr uniformly. Files never returns *verr.Error itself for absent/
// conflict conditions (those are (false, nil) per spec.md §7); this is for
// genuinely unexpected errors that escaped as plain os errors.
func (b *Backend) ErrorCode(err error) verr.ErrorCode {
	switch {
	case os.IsNotExist(err):
		return verr.NotFound
	case os.IsExist(err):
		return verr.AlreadyExists
	case os.IsPermission(err):
		return verr.PermissionDenied
	default:
		return verr.Unknown
	}
}
