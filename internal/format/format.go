// Package format renders transcript timestamps for logs and subtitle
// output.
package format

import (
	"fmt"
	"math"
	"time"
)

// Duration renders a duration as H:MM:SS, or M:SS under an hour, for log
// lines and CLI summaries.
func Duration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)

	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// SRTTimestamp renders a position in seconds as SubRip's HH:MM:SS,mmm
// form. The position is rounded to whole milliseconds first, so values
// like 61.042 that have no exact binary representation still format as
// the millisecond a caller wrote.
func SRTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMS := int64(math.Round(seconds * 1000))

	h := totalMS / 3_600_000
	m := totalMS % 3_600_000 / 60_000
	s := totalMS % 60_000 / 1000
	ms := totalMS % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
