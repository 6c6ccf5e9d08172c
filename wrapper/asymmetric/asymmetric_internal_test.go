package asymmetric

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"testing"
)

func testKeyPair(t *testing.T) KeyPair {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return KeyPair{Public: &priv.PublicKey, Private: priv}
}

func TestSealOpenRoundtrip(t *testing.T) {
	keys := testKeyPair(t)
	b := New(nil, keys)
	plain := []byte("the quick brown fox jumps over the lazy dog")

	sealed, err := b.seal(plain)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(sealed, []byte(frameHeader)) {
		t.Fatal("sealed frame missing header")
	}

	got, ok := b.open(sealed)
	if !ok {
		t.Fatal("open failed on a freshly sealed frame")
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("got %q want %q", got, plain)
	}
}

func TestOpenPassthrough(t *testing.T) {
	keys := testKeyPair(t)
	b := New(nil, keys)
	legacy := []byte("never wrapped, predates this codec")

	got, ok := b.open(legacy)
	if !ok {
		t.Fatal("open should pass through unwrapped data")
	}
	if !bytes.Equal(got, legacy) {
		t.Errorf("got %q want %q", got, legacy)
	}
}

func TestOpenWrongKeyFails(t *testing.T) {
	writerKeys := testKeyPair(t)
	readerKeys := testKeyPair(t)

	writer := New(nil, writerKeys)
	reader := New(nil, KeyPair{Public: writerKeys.Public, Private: readerKeys.Private})

	sealed, err := writer.seal([]byte("secret payload"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reader.open(sealed); ok {
		t.Error("open succeeded with the wrong private key, want failure")
	}
}

func TestDecryptReaderMatchesOpen(t *testing.T) {
	keys := testKeyPair(t)
	b := New(nil, keys)
	plain := bytes.Repeat([]byte("stream me "), 500)

	sealed, err := b.seal(plain)
	if err != nil {
		t.Fatal(err)
	}

	r := newDecryptReader(io.NopCloser(bytes.NewReader(sealed)), keys.Private)
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plain) {
		t.Error("streamed decryption doesn't match buffered open()")
	}
}
