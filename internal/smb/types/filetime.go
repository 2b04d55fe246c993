package types

import "time"

// Windows FILETIME epoch: January 1, 1601 UTC.
// Difference from the Unix epoch in 100-nanosecond intervals.
const filetimeUnixDiff = 116444736000000000

// TimeToFiletime converts a Go time.Time to a Windows FILETIME: the number
// of 100-nanosecond intervals since January 1, 1601 UTC.
func TimeToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100) + filetimeUnixDiff
}

// FiletimeToTime converts a Windows FILETIME to a Go time.Time.
func FiletimeToTime(ft uint64) time.Time {
	if ft == 0 || ft < filetimeUnixDiff {
		return time.Time{}
	}
	nsec := int64(ft-filetimeUnixDiff) * 100
	return time.Unix(0, nsec)
}
