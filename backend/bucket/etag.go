package bucket

import "regexp"

// etagQuotes strips the surrounding double quotes S3-compatible servers
// wrap ETags in, so the raw hex digest can be compared and stored as a
// ConflictToken value. Adapted from the teacher's CanonicalizeETag.
var etagQuotes = regexp.MustCompile(`"*?([^"]*?)"*?$`)

func canonicalizeETag(etag string) string {
	return etagQuotes.ReplaceAllString(etag, "$1")
}
