// Package secret implements the password-derived authenticated-encryption
// wrapper Backend of spec.md §4.6: a master secret is derived from a
// password and salt via PBKDF2-HMAC-SHA-512, and each object is sealed
// under its own random per-object data key wrapped by that master secret.
package secret

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"io"

	"github.com/thatique/keep"
	"golang.org/x/crypto/pbkdf2"
)

// frameHeader prefixes every frame written by this wrapper.
const frameHeader = "SKE:"

const (
	keyLen     = 32 // AES-256 key
	ivLen      = 16 // AES-GCM nonce: the 16-byte IV half of the key material, used as-is
	secretLen  = keyLen + ivLen
	tagLen     = 16
	pbkdf2Iter = 1000
)

// Options configures a Backend.
type Options struct {
	Password string
	Salt     string
}

// Backend wraps an inner keep.Backend with AES-256-GCM encryption keyed by
// a password-derived master secret.
type Backend struct {
	inner  keep.Backend
	master []byte // 48 bytes: 32-byte key || 16-byte IV
}

var _ keep.Backend = (*Backend)(nil)

// New derives the master secret from opts and wraps inner.
func New(inner keep.Backend, opts Options) *Backend {
	master := pbkdf2.Key([]byte(opts.Password), []byte(opts.Salt), pbkdf2Iter, secretLen, sha512.New)
	return &Backend{inner: inner, master: master}
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

// Read decrypts the stored bytes. Frames missing the "SKE:" header pass
// through unchanged (transparent compatibility with data written before
// wrapping, per spec.md §4.6). Authentication failures are reported as
// (nil, nil), not an error.
func (b *Backend) Read(ctx context.Context, id keep.ContentId) (*keep.Object, error) {
	obj, err := b.inner.Read(ctx, id)
	if err != nil || obj == nil {
		return obj, err
	}
	plain, ok := b.open(obj.Data)
	if !ok {
		return nil, nil
	}
	return &keep.Object{Type: obj.Type, Data: plain}, nil
}

func (b *Backend) Write(ctx context.Context, id keep.ContentId, data []byte, typ keep.MimeType, tok keep.ConflictToken) (bool, error) {
	sealed, err := b.seal(data)
	if err != nil {
		return false, err
	}
	return b.inner.Write(ctx, id, sealed, typ, tok)
}

func (b *Backend) Delete(ctx context.Context, id keep.ContentId, tok keep.ConflictToken) (bool, error) {
	return b.inner.Delete(ctx, id, tok)
}

func (b *Backend) ReadStream(ctx context.Context, id keep.ContentId) (*keep.StreamObject, error) {
	obj, err := b.inner.ReadStream(ctx, id)
	if err != nil || obj == nil {
		return obj, err
	}
	return &keep.StreamObject{Type: obj.Type, Body: newDecryptReader(obj.Body, b.master)}, nil
}

func (b *Backend) WriteStream(ctx context.Context, id keep.ContentId, r io.Reader, typ keep.MimeType, tok keep.ConflictToken) (bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return false, err
	}
	return b.Write(ctx, id, data, typ, tok)
}

func (b *Backend) Rename(ctx context.Context, source, target keep.ContentId) (bool, error) {
	return b.inner.Rename(ctx, source, target)
}

func (b *Backend) Close() error { return b.inner.Close() }

// seal produces "SKE:" || enckey(48) || keytag(16) || ciphertext || tag(16).
func (b *Backend) seal(plain []byte) ([]byte, error) {
	dataKey := make([]byte, secretLen)
	if _, err := rand.Read(dataKey); err != nil {
		return nil, err
	}
	masterGCM, err := gcmFrom(b.master[:keyLen])
	if err != nil {
		return nil, err
	}
	masterNonce := b.master[keyLen : keyLen+masterGCM.NonceSize()]
	wrapped := masterGCM.Seal(nil, masterNonce, dataKey, nil)
	enckey, keytag := wrapped[:len(wrapped)-tagLen], wrapped[len(wrapped)-tagLen:]

	dataGCM, err := gcmFrom(dataKey[:keyLen])
	if err != nil {
		return nil, err
	}
	dataNonce := dataKey[keyLen : keyLen+dataGCM.NonceSize()]
	payload := dataGCM.Seal(nil, dataNonce, plain, nil)
	ciphertext, authTag := payload[:len(payload)-tagLen], payload[len(payload)-tagLen:]

	out := make([]byte, 0, len(frameHeader)+len(enckey)+len(keytag)+len(ciphertext)+len(authTag))
	out = append(out, frameHeader...)
	out = append(out, enckey...)
	out = append(out, keytag...)
	out = append(out, ciphertext...)
	out = append(out, authTag...)
	return out, nil
}

// open verifies the header and decrypts. ok is false on any framing or
// authentication failure. Data without the "SKE:" header is in
// pass-through (unwrapped) form and is returned unchanged with ok=true per
// spec.md §4.6.
func (b *Backend) open(raw []byte) (data []byte, ok bool) {
	if len(raw) < len(frameHeader) || !bytes.Equal(raw[:len(frameHeader)], []byte(frameHeader)) {
		return raw, true
	}
	rest := raw[len(frameHeader):]
	if len(rest) < secretLen+tagLen+tagLen {
		return nil, false
	}
	enckey := rest[:secretLen]
	keytag := rest[secretLen : secretLen+tagLen]
	body := rest[secretLen+tagLen:]
	if len(body) < tagLen {
		return nil, false
	}
	ciphertext := body[:len(body)-tagLen]
	authTag := body[len(body)-tagLen:]

	masterGCM, err := gcmFrom(b.master[:keyLen])
	if err != nil {
		return nil, false
	}
	masterNonce := b.master[keyLen : keyLen+masterGCM.NonceSize()]
	dataKey, err := masterGCM.Open(nil, masterNonce, append(append([]byte{}, enckey...), keytag...), nil)
	if err != nil {
		return nil, false
	}
	dataGCM, err := gcmFrom(dataKey[:keyLen])
	if err != nil {
		return nil, false
	}
	dataNonce := dataKey[keyLen : keyLen+dataGCM.NonceSize()]
	plain, err := dataGCM.Open(nil, dataNonce, append(append([]byte{}, ciphertext...), authTag...), nil)
	if err != nil {
		return nil, false
	}
	return plain, true
}

func gcmFrom(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivLen)
}

