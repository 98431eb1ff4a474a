package util

import "time"

// StampLayout is UTC with fixed microsecond precision, so stored timestamps
// compare lexicographically in the same order as the instants they encode.
// The change-feed cursor relies on this.
const StampLayout = "2006-01-02T15:04:05.000000Z"

// NowStamp returns the current UTC time in StampLayout.
func NowStamp() string {
	return time.Now().UTC().Format(StampLayout)
}
