package timecode_test

import (
	"errors"
	"testing"
	"time"

	"clipd/internal/timecode"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		input string
		want  time.Duration
	}{
		{"90", 90 * time.Second},
		{"1:30", 90 * time.Second},
		{"0:05", 5 * time.Second},
		{"1:02:03", time.Hour + 2*time.Minute + 3*time.Second},
		{"0:03.5", 3500 * time.Millisecond},
		{"12.25", 12250 * time.Millisecond},
		{" 2:00 ", 2 * time.Minute},
	}
	for _, tc := range cases {
		got, err := timecode.ParseDuration(tc.input)
		if err != nil {
			t.Fatalf("ParseDuration(%q) failed: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("ParseDuration(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestParseDurationRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "abc", "1:2:3:4", "-5", "1:-30"} {
		if _, err := timecode.ParseDuration(input); err == nil {
			t.Fatalf("ParseDuration(%q) should fail", input)
		}
	}
}

func TestParseRangeSeparators(t *testing.T) {
	want := timecode.Range{Start: 0, End: 119 * time.Second}
	for _, input := range []string{"00:00-01:59", "0:00 - 1:59", "0:00 to 1:59", "от 0:00 до 1:59"} {
		got, err := timecode.ParseRange(input)
		if err != nil {
			t.Fatalf("ParseRange(%q) failed: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseRange(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestParseRangeEndBeforeStart(t *testing.T) {
	_, err := timecode.ParseRange("2:00-1:00")
	var parseErr *timecode.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Reason != timecode.ReasonEndBeforeStart {
		t.Fatalf("expected end_before_start, got %s", parseErr.Reason)
	}

	// Equal endpoints are an empty clip and also rejected.
	if _, err := timecode.ParseRange("1:00-1:00"); err == nil {
		t.Fatal("expected error for zero-length range")
	}
}

func TestParseBatchReportsPerEntry(t *testing.T) {
	input := "00:00-01:59\n2:00-3:30\nbadrange"

	var results []timecode.Result
	for r := range timecode.Parse(input) {
		results = append(results, r)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(results))
	}
	if results[0].Err != nil || results[1].Err != nil {
		t.Fatalf("expected first two entries valid: %v, %v", results[0].Err, results[1].Err)
	}
	if results[0].Range != (timecode.Range{Start: 0, End: 119 * time.Second}) {
		t.Fatalf("unexpected first range: %v", results[0].Range)
	}
	if results[1].Range != (timecode.Range{Start: 2 * time.Minute, End: 3*time.Minute + 30*time.Second}) {
		t.Fatalf("unexpected second range: %v", results[1].Range)
	}

	var parseErr *timecode.ParseError
	if !errors.As(results[2].Err, &parseErr) || parseErr.Reason != timecode.ReasonMalformed {
		t.Fatalf("expected malformed third entry, got %v", results[2].Err)
	}
	if results[2].Index != 3 {
		t.Fatalf("expected index 3 for bad entry, got %d", results[2].Index)
	}
}

func TestParseSplitsCommasAndSemicolons(t *testing.T) {
	var count int
	for r := range timecode.Parse("0:00-0:10, 0:20-0:30; 0:40-0:50") {
		if r.Err != nil {
			t.Fatalf("entry %d failed: %v", r.Index, r.Err)
		}
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 entries, got %d", count)
	}
}

func TestParseIsNotRestartable(t *testing.T) {
	seq := timecode.Parse("0:00-0:10\n0:20-0:30")

	first := 0
	for range seq {
		first++
	}
	second := 0
	for range seq {
		second++
	}
	if first != 2 || second != 0 {
		t.Fatalf("expected single-use sequence, got %d then %d", first, second)
	}
}

func TestFormatDurationRoundTrips(t *testing.T) {
	values := []time.Duration{
		0,
		5 * time.Second,
		90 * time.Second,
		time.Hour + 2*time.Minute + 3*time.Second,
		3500 * time.Millisecond,
		time.Hour + 250*time.Millisecond,
	}
	for _, want := range values {
		formatted := timecode.FormatDuration(want)
		got, err := timecode.ParseDuration(formatted)
		if err != nil {
			t.Fatalf("ParseDuration(%q) failed: %v", formatted, err)
		}
		if got != want {
			t.Fatalf("round trip %v -> %q -> %v", want, formatted, got)
		}
	}
}

func TestRangeOverlaps(t *testing.T) {
	a := timecode.Range{Start: 0, End: 10 * time.Second}
	b := timecode.Range{Start: 5 * time.Second, End: 15 * time.Second}
	c := timecode.Range{Start: 10 * time.Second, End: 20 * time.Second}

	if !a.Overlaps(b) {
		t.Fatal("expected a and b to overlap")
	}
	if a.Overlaps(c) {
		t.Fatal("touching ranges must not count as overlapping")
	}
}
