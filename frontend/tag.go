package frontend

import "github.com/thatique/keep"

// Tag is the immutable JSON record describing one version of a named
// entity, per spec.md §3. Tag records are content-addressed and never
// rewritten; history is the chain formed by Pre.
type Tag struct {
	Name string          `json:"name"`
	Cid  *keep.ContentId `json:"cid"`
	Type keep.MimeType    `json:"type"`
	Date int64           `json:"date"`
	Pre  *keep.ContentId `json:"pre"`
}

// IsTombstone reports whether this tag marks the name as deleted.
func (t *Tag) IsTombstone() bool {
	return t.Cid == nil
}
