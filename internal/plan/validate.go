package plan

import (
	"fmt"
	"strings"
	"time"

	"clipd/internal/timecode"
)

// IssueKind classifies a validation failure.
type IssueKind string

const (
	KindTooManySegments IssueKind = "too_many_segments"
	KindOutOfBounds     IssueKind = "range_out_of_bounds"
)

// Issue describes one validation failure. Index is 1-based and zero for
// batch-level issues such as the segment-count cap.
type Issue struct {
	Kind   IssueKind
	Index  int
	Detail string
}

// Report aggregates every validation failure for a batch. It implements
// error so callers can return it directly.
type Report struct {
	Issues []Issue
}

func (r *Report) Error() string {
	if r == nil || len(r.Issues) == 0 {
		return "validation report: no issues"
	}
	parts := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		if issue.Index > 0 {
			parts = append(parts, fmt.Sprintf("segment %d: %s", issue.Index, issue.Detail))
		} else {
			parts = append(parts, issue.Detail)
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Overlap records a pair of segment indices whose ranges intersect.
// Overlap is advisory, not an error: clips may legitimately overlap.
type Overlap struct {
	A, B int
}

// Config bounds what Validate accepts.
type Config struct {
	MaxSegments    int
	SourceDuration time.Duration
}

// Validate checks ranges against the source duration and segment cap. On
// success it returns the ordered segments plus any overlap warnings. On
// failure it returns a Report listing every offending index; it never stops
// at the first problem.
func Validate(ranges []timecode.Range, cfg Config) ([]Segment, []Overlap, *Report) {
	var report Report

	if cfg.MaxSegments > 0 && len(ranges) > cfg.MaxSegments {
		report.Issues = append(report.Issues, Issue{
			Kind:   KindTooManySegments,
			Detail: fmt.Sprintf("%d segments requested, limit is %d", len(ranges), cfg.MaxSegments),
		})
	}

	for i, r := range ranges {
		if cfg.SourceDuration > 0 && r.End > cfg.SourceDuration {
			report.Issues = append(report.Issues, Issue{
				Kind:  KindOutOfBounds,
				Index: i + 1,
				Detail: fmt.Sprintf("range %s ends past source duration %s",
					r, timecode.FormatDuration(cfg.SourceDuration)),
			})
		}
	}

	if len(report.Issues) > 0 {
		return nil, nil, &report
	}

	segments := make([]Segment, len(ranges))
	for i, r := range ranges {
		segments[i] = Segment{Index: i + 1, Range: r}
	}
	return segments, FindOverlaps(ranges), nil
}

// FindOverlaps reports every pair of intersecting ranges. Callers re-run it
// after padding, which can push neighbouring ranges into each other.
func FindOverlaps(ranges []timecode.Range) []Overlap {
	var overlaps []Overlap
	for i := range ranges {
		for j := i + 1; j < len(ranges); j++ {
			if ranges[i].Overlaps(ranges[j]) {
				overlaps = append(overlaps, Overlap{A: i + 1, B: j + 1})
			}
		}
	}
	return overlaps
}
