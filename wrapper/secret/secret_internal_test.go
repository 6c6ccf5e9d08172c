package secret

import (
	"bytes"
	"io"
	"testing"
)

func TestSealOpenRoundtrip(t *testing.T) {
	b := New(nil, Options{Password: "hunter2", Salt: "nacl"})
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
	b := New(nil, Options{Password: "hunter2", Salt: "nacl"})
	legacy := []byte("never wrapped, predates this codec")

	got, ok := b.open(legacy)
	if !ok {
		t.Fatal("open should pass through unwrapped data")
	}
	if !bytes.Equal(got, legacy) {
		t.Errorf("got %q want %q", got, legacy)
	}
}

func TestOpenWrongPasswordFails(t *testing.T) {
	writer := New(nil, Options{Password: "correct-horse", Salt: "nacl"})
	reader := New(nil, Options{Password: "wrong-password", Salt: "nacl"})

	sealed, err := writer.seal([]byte("secret payload"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reader.open(sealed); ok {
		t.Error("open succeeded with the wrong password, want failure")
	}
}

func TestDecryptReaderMatchesOpen(t *testing.T) {
	b := New(nil, Options{Password: "hunter2", Salt: "nacl"})
	plain := bytes.Repeat([]byte("stream me "), 500)

	sealed, err := b.seal(plain)
	if err != nil {
		t.Fatal(err)
	}

	r := newDecryptReader(io.NopCloser(bytes.NewReader(sealed)), b.master)
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plain) {
		t.Error("streamed decryption doesn't match buffered open()")
	}
}
