package asymmetric

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"io"
)

// headerPeekLen is "AKE:"(4) + uint16 key length(2), the minimum needed to
// learn how many more bytes the wrapped data key occupies (spec.md §4.7).
const headerPeekLen = len(frameHeader) + 2

type streamState int

const (
	stateAwaitingHeader streamState = iota
	stateDecrypting
	statePassthrough
	stateFinal
)

// decryptReader mirrors wrapper/secret's stream state machine, but first
// peeks headerPeekLen bytes to learn the RSA-wrapped key length before it
// can determine the full preamble size.
type decryptReader struct {
	src     io.ReadCloser
	private *rsa.PrivateKey

	state     streamState
	buf       []byte
	srcEOF    bool
	dataGCM   cipher.AEAD
	dataNonce []byte
	final     []byte
}

func newDecryptReader(src io.ReadCloser, private *rsa.PrivateKey) io.ReadCloser {
	return &decryptReader{src: src, private: private}
}

func (r *decryptReader) fill(n int) error {
	chunk := make([]byte, 4096)
	for len(r.buf) < n && !r.srcEOF {
		m, err := r.src.Read(chunk)
		if m > 0 {
			r.buf = append(r.buf, chunk[:m]...)
		}
		if err == io.EOF {
			r.srcEOF = true
			break
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *decryptReader) Read(p []byte) (int, error) {
	switch r.state {
	case stateAwaitingHeader:
		if err := r.fill(headerPeekLen); err != nil {
			return 0, err
		}
		if len(r.buf) < len(frameHeader) || !bytes.Equal(r.buf[:len(frameHeader)], []byte(frameHeader)) {
			r.state = statePassthrough
			return r.Read(p)
		}
		if len(r.buf) < headerPeekLen {
			return 0, io.ErrUnexpectedEOF
		}
		keylen := int(binary.BigEndian.Uint16(r.buf[len(frameHeader):headerPeekLen]))
		preambleLen := headerPeekLen + keylen
		if err := r.fill(preambleLen); err != nil {
			return 0, err
		}
		if len(r.buf) < preambleLen {
			return 0, io.ErrUnexpectedEOF
		}
		enckey := r.buf[headerPeekLen:preambleLen]
		if r.private == nil {
			return 0, io.ErrUnexpectedEOF
		}
		dataKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, r.private, enckey, nil)
		if err != nil {
			return 0, io.ErrUnexpectedEOF
		}
		dataGCM, err := gcmFrom(dataKey[:keyLen])
		if err != nil {
			return 0, err
		}
		r.dataGCM = dataGCM
		r.dataNonce = dataKey[keyLen : keyLen+dataGCM.NonceSize()]
		r.buf = r.buf[preambleLen:]
		r.state = stateDecrypting
		return r.Read(p)

	case statePassthrough:
		if len(r.buf) > 0 {
			n := copy(p, r.buf)
			r.buf = r.buf[n:]
			return n, nil
		}
		return r.src.Read(p)

	case stateDecrypting:
		if !r.srcEOF {
			if err := r.fill(len(r.buf) + 4096); err != nil {
				return 0, err
			}
		}
		if !r.srcEOF {
			return 0, nil
		}
		if len(r.buf) < tagLen {
			return 0, io.ErrUnexpectedEOF
		}
		plain, err := r.dataGCM.Open(nil, r.dataNonce, r.buf, nil)
		if err != nil {
			return 0, io.ErrUnexpectedEOF
		}
		r.final = plain
		r.state = stateFinal
		return r.Read(p)

	case stateFinal:
		if len(r.final) == 0 {
			return 0, io.EOF
		}
		n := copy(p, r.final)
		r.final = r.final[n:]
		return n, nil
	}
	return 0, io.EOF
}

func (r *decryptReader) Close() error { return r.src.Close() }
