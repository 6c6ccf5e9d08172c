package keep

import "github.com/thatique/keep/verr"

// ConflictToken is an opaque witness of the hash a resource had when it was
// read. It is minted by exactly one Backend and may only be used to gate a
// write or delete against that same Backend; its value is not transferable.
//
// Backends mint tokens with NewToken from their Token method; a token's
// value is only readable (through TokenValue) by the minting backend,
// enforced at runtime via an identity check (the same pattern the teacher's
// driver.Bucket.ErrorCode uses to let only the owning driver interpret its
// own errors).
type ConflictToken interface {
	// mintedBy returns the Backend instance that produced this token.
	mintedBy() interface{}
	// value returns the hash this token asserts, readable only by the
	// backend identified by witness.
	value(witness interface{}) (string, error)
}

// token is the concrete ConflictToken implementation shared by all backends
// in this module.
type token struct {
	backend interface{}
	hash    string
}

// NewToken mints a ConflictToken for hash, owned by backend. Backend
// implementations call this from Token.
func NewToken(backend interface{}, hash string) ConflictToken {
	return &token{backend: backend, hash: hash}
}

func (t *token) mintedBy() interface{} { return t.backend }

func (t *token) value(witness interface{}) (string, error) {
	if witness != t.backend {
		return "", verr.Newf(verr.InvalidArgument, nil, "keep: token was not minted by this backend")
	}
	return t.hash, nil
}

// TokenValue returns the hash asserted by tok, as witnessed by backend.
// Backend implementations use this to read the value of a token presented
// to Write/Delete. It fails if tok was minted by a different backend.
func TokenValue(backend interface{}, tok ConflictToken) (string, bool) {
	if tok == nil {
		return "", false
	}
	v, err := tok.value(backend)
	if err != nil {
		return "", false
	}
	return v, true
}
