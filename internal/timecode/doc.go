// Package timecode parses free-text timecode ranges into typed time
// ranges.
//
// Accepted endpoint syntax is H:MM:SS, M:SS, or bare seconds, each with an
// optional fractional part. Two endpoints form a range separated by "-" or
// "to". Multiple ranges are separated by newlines, commas, or semicolons.
// Parsing is per-entry: a malformed entry yields a ParseError for that
// entry while the rest of the batch continues.
package timecode
