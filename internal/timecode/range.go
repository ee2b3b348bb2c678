package timecode

import (
	"fmt"
	"strings"
	"time"
)

// Range is a half-open time span within a media file. Start and End carry
// millisecond resolution; End is always strictly after Start for ranges
// produced by this package.
type Range struct {
	Start time.Duration
	End   time.Duration
}

// Duration returns the span covered by the range.
func (r Range) Duration() time.Duration {
	return r.End - r.Start
}

// Overlaps reports whether two ranges share any span.
func (r Range) Overlaps(other Range) bool {
	return r.Start < other.End && other.Start < r.End
}

// String renders the range as "start-end" using FormatDuration.
func (r Range) String() string {
	return FormatDuration(r.Start) + "-" + FormatDuration(r.End)
}

// FormatDuration renders a duration as H:MM:SS or M:SS, appending a
// fractional part when the value is not whole seconds. The output parses
// back to a millisecond-equal duration.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Millisecond)

	millis := d.Milliseconds()
	hours := millis / 3_600_000
	millis -= hours * 3_600_000
	minutes := millis / 60_000
	millis -= minutes * 60_000
	seconds := millis / 1000
	millis -= seconds * 1000

	var b strings.Builder
	if hours > 0 {
		fmt.Fprintf(&b, "%d:%02d:%02d", hours, minutes, seconds)
	} else {
		fmt.Fprintf(&b, "%d:%02d", minutes, seconds)
	}
	if millis > 0 {
		frac := strings.TrimRight(fmt.Sprintf("%03d", millis), "0")
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
