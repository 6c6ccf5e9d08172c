// Package keep implements a content-addressable storage core: a uniform
// Backend contract for byte blobs keyed by SHA-512 digest, plus a Frontend
// (see github.com/thatique/keep/frontend) that layers mutable, versioned
// names on top of it.
package keep

import (
	"crypto/sha512"
	"encoding/hex"
	"regexp"

	"github.com/thatique/keep/verr"
)

// contentIDPattern matches a 128-character lowercase hex SHA-512 digest,
// optionally prefixed with "-" to mark a name identifier.
var contentIDPattern = regexp.MustCompile(`^-?[0-9a-f]{128}$`)

// mimeTypePattern matches spec.md's MimeType grammar.
var mimeTypePattern = regexp.MustCompile(`^[\w|-]+/[\w|-]+(?:;\s\w+=[\w-]+)*$`)

// ContentId is a lowercase hexadecimal SHA-512 digest of some stored bytes,
// or the same shape prefixed with "-" to address the mutable name-pointer
// slot for a name (see NameID).
type ContentId string

// NewContentID validates s and returns it as a ContentId.
func NewContentID(s string) (ContentId, error) {
	if !contentIDPattern.MatchString(s) {
		return "", verr.Newf(verr.InvalidArgument, nil, "keep: invalid content id %q", s)
	}
	return ContentId(s), nil
}

// IsNameID reports whether id addresses a name-pointer slot rather than
// content.
func (id ContentId) IsNameID() bool {
	return len(id) > 0 && id[0] == '-'
}

// String implements fmt.Stringer.
func (id ContentId) String() string {
	return string(id)
}

// sha512Hex returns the lowercase hex SHA-512 digest of data.
func sha512Hex(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

// ContentIDOf computes the ContentId that data must be stored under.
func ContentIDOf(data []byte) ContentId {
	return ContentId(sha512Hex(data))
}

// NameID computes the deterministic name-identifier for a human-readable
// name: nameId(n) = "-" + sha512_hex(n).
func NameID(name string) ContentId {
	return ContentId("-" + sha512Hex([]byte(name)))
}

// pathSegments is how many leading hex characters of an id become
// directory levels in a hierarchical store layout (h/h/h/h/h/h/<id>).
const pathSegments = 6

// PathSegments returns the per-level path components a hierarchical
// backend should use to store id, followed by the full id as the final
// component.
func PathSegments(id ContentId) []string {
	s := string(id)
	full := s
	if s[0] == '-' {
		s = s[1:]
	}
	segs := make([]string, 0, pathSegments+1)
	for i := 0; i < pathSegments && i < len(s); i++ {
		segs = append(segs, string(s[i]))
	}
	segs = append(segs, full)
	return segs
}

// MimeType is a MIME content-type string, e.g. "application/octet-stream".
type MimeType string

// Well-known MimeType values used throughout the core.
const (
	// MimeOctetStream is the default MimeType for opaque bytes.
	MimeOctetStream MimeType = "application/octet-stream"
	// MimeText is plain text.
	MimeText MimeType = "text/plain"
	// MimeJSON is the type used for pushed JSON tag records.
	MimeJSON MimeType = "application/json; charset=utf-8"
	// MimeSHA512Pointer marks a blob whose body is the ContentId of
	// another blob (used for the name-pointer slot).
	MimeSHA512Pointer MimeType = "text/sha-512"
	// MimeTombstone marks a tag record whose cid is null.
	MimeTombstone MimeType = "application/empty"
)

// NewMimeType validates s and returns it as a MimeType.
func NewMimeType(s string) (MimeType, error) {
	if s == "" {
		return "", verr.Newf(verr.InvalidArgument, nil, "keep: mime type must not be empty")
	}
	if !mimeTypePattern.MatchString(s) {
		return "", verr.Newf(verr.InvalidArgument, nil, "keep: invalid mime type %q", s)
	}
	return MimeType(s), nil
}

// String implements fmt.Stringer.
func (t MimeType) String() string {
	return string(t)
}
