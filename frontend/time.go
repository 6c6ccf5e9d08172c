package frontend

import "time"

// nowMillis returns the current time as milliseconds since the Unix epoch,
// the unit spec.md §3 uses for a Tag's date field.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
