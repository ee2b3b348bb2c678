package plan

import (
	"time"

	"clipd/internal/timecode"
)

// DefaultOperation is the operation applied when a request names none: a
// stream-copy cut of the requested range.
const DefaultOperation = "clip"

// Segment is one unit of work: a single time-bounded cut of the source.
type Segment struct {
	// Index is the 1-based position within the job. It is stable for the
	// job's lifetime and names the segment in progress and output.
	Index     int
	Range     timecode.Range
	Source    string
	Operation string
	Params    map[string]string
}

// Pad widens every range by the given slack, clamped to [0, total]. Ranges
// that collapse to nothing after clamping are dropped, matching how the
// clipping flow treats padding as best effort.
func Pad(ranges []timecode.Range, startPad, endPad, total time.Duration) []timecode.Range {
	if startPad <= 0 && endPad <= 0 {
		return ranges
	}
	padded := make([]timecode.Range, 0, len(ranges))
	for _, r := range ranges {
		start := r.Start - startPad
		if start < 0 {
			start = 0
		}
		end := r.End + endPad
		if total > 0 && end > total {
			end = total
		}
		if start >= end {
			continue
		}
		padded = append(padded, timecode.Range{Start: start, End: end})
	}
	return padded
}
