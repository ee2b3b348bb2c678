package timecode

import (
	"bufio"
	"fmt"
	"iter"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Reason classifies why a single entry failed to parse.
type Reason string

const (
	ReasonMalformed      Reason = "malformed"
	ReasonEndBeforeStart Reason = "end_before_start"
)

// ParseError reports a single unparsable entry. The batch as a whole never
// fails; callers receive one ParseError per bad entry.
type ParseError struct {
	Raw    string
	Reason Reason
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("timecode %q: %s", e.Raw, e.Reason)
}

// Result pairs one raw entry with its parse outcome. Err is a *ParseError
// when the entry failed; Range is valid otherwise.
type Result struct {
	// Index is the 1-based position of the entry in the input.
	Index int
	Raw   string
	Range Range
	Err   error
}

// Range separators: "-", "to", and the originals the bot's audience used.
var rangeSeparator = regexp.MustCompile(`\s*(?:to|до|-)\s*`)

var leadingFrom = regexp.MustCompile(`^\s*от\s*`)

func isEntryDelimiter(r rune) bool {
	return r == ',' || r == ';'
}

// Parse lazily yields one Result per entry in the input text. Entries are
// separated by newlines, commas, or semicolons; blank entries are skipped.
// The sequence is finite and non-restartable: ranging over it a second
// time yields nothing.
func Parse(text string) iter.Seq[Result] {
	scanner := bufio.NewScanner(strings.NewReader(text))
	return func(yield func(Result) bool) {
		index := 0
		for scanner.Scan() {
			for _, entry := range strings.FieldsFunc(scanner.Text(), isEntryDelimiter) {
				entry = strings.TrimSpace(entry)
				if entry == "" {
					continue
				}
				index++
				result := Result{Index: index, Raw: entry}
				rng, err := ParseRange(entry)
				if err != nil {
					result.Err = err
				} else {
					result.Range = rng
				}
				if !yield(result) {
					return
				}
			}
		}
	}
}

// ParseRange parses a single "start-end" expression.
func ParseRange(raw string) (Range, error) {
	trimmed := leadingFrom.ReplaceAllString(strings.TrimSpace(raw), "")
	normalized := rangeSeparator.ReplaceAllString(trimmed, "-")

	parts := strings.Split(normalized, "-")
	if len(parts) != 2 {
		return Range{}, &ParseError{Raw: raw, Reason: ReasonMalformed}
	}

	start, err := ParseDuration(parts[0])
	if err != nil {
		return Range{}, &ParseError{Raw: raw, Reason: ReasonMalformed}
	}
	end, err := ParseDuration(parts[1])
	if err != nil {
		return Range{}, &ParseError{Raw: raw, Reason: ReasonMalformed}
	}
	if end <= start {
		return Range{}, &ParseError{Raw: raw, Reason: ReasonEndBeforeStart}
	}
	return Range{Start: start, End: end}, nil
}

// ParseDuration parses one endpoint: H:MM:SS, M:SS, or bare seconds, each
// component optionally fractional. The result is rounded to milliseconds.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty timecode")
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("too many components in %q", raw)
	}

	var seconds float64
	for _, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || value < 0 {
			return 0, fmt.Errorf("bad timecode component %q", part)
		}
		seconds = seconds*60 + value
	}
	return time.Duration(seconds*1000+0.5) * time.Millisecond, nil
}
