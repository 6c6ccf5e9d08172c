package memory

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"io"
)

func hashOf(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}
