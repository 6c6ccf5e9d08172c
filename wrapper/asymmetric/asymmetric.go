// Package asymmetric implements the hybrid public-key wrapper Backend of
// spec.md §4.7: a random per-object data key is RSA-OAEP wrapped by the
// recipient's public key, and the payload is sealed under that data key
// with AES-256-GCM. Framing mirrors wrapper/secret but carries an explicit
// key-length prefix because RSA-wrapped key size depends on key length.
package asymmetric

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/thatique/keep"
)

const frameHeader = "AKE:"

const (
	keyLen    = 32
	ivLen     = 16
	secretLen = keyLen + ivLen
	tagLen    = 16
)

// KeyPair is the asymmetric key object spec.md §4.7 requires: public-
// encrypt for Write, private-decrypt for Read. Either half may be nil if
// the Backend will only be used for the corresponding operation.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// Backend wraps an inner keep.Backend with hybrid RSA+AES-GCM encryption.
type Backend struct {
	inner keep.Backend
	keys  KeyPair
}

var _ keep.Backend = (*Backend)(nil)

// New wraps inner with the given key pair.
func New(inner keep.Backend, keys KeyPair) *Backend {
	return &Backend{inner: inner, keys: keys}
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
	return &keep.StreamObject{Type: obj.Type, Body: newDecryptReader(obj.Body, b.keys.Private)}, nil
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

// seal produces "AKE:" || uint16_BE(len(enckey)) || enckey || ciphertext || tag(16).
func (b *Backend) seal(plain []byte) ([]byte, error) {
	dataKey := make([]byte, secretLen)
	if _, err := rand.Read(dataKey); err != nil {
		return nil, err
	}
	enckey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, b.keys.Public, dataKey, nil)
	if err != nil {
		return nil, err
	}

	dataGCM, err := gcmFrom(dataKey[:keyLen])
	if err != nil {
		return nil, err
	}
	dataNonce := dataKey[keyLen : keyLen+dataGCM.NonceSize()]
	payload := dataGCM.Seal(nil, dataNonce, plain, nil)
	ciphertext, authTag := payload[:len(payload)-tagLen], payload[len(payload)-tagLen:]

	lenPrefix := make([]byte, 2)
	binary.BigEndian.PutUint16(lenPrefix, uint16(len(enckey)))

	out := make([]byte, 0, len(frameHeader)+2+len(enckey)+len(ciphertext)+len(authTag))
	out = append(out, frameHeader...)
	out = append(out, lenPrefix...)
	out = append(out, enckey...)
	out = append(out, ciphertext...)
	out = append(out, authTag...)
	return out, nil
}

// open verifies the header and decrypts. Frames missing the "AKE:" header
// pass through unchanged (ok=true, data=raw); authentication or RSA
// failures report ok=false.
func (b *Backend) open(raw []byte) (data []byte, ok bool) {
	if len(raw) < len(frameHeader) || !bytes.Equal(raw[:len(frameHeader)], []byte(frameHeader)) {
		return raw, true
	}
	rest := raw[len(frameHeader):]
	if len(rest) < 2 {
		return nil, false
	}
	keylen := int(binary.BigEndian.Uint16(rest[:2]))
	rest = rest[2:]
	if len(rest) < keylen+tagLen {
		return nil, false
	}
	enckey := rest[:keylen]
	body := rest[keylen:]
	ciphertext := body[:len(body)-tagLen]
	authTag := body[len(body)-tagLen:]

	if b.keys.Private == nil {
		return nil, false
	}
	dataKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, b.keys.Private, enckey, nil)
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
