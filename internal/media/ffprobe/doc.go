// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect executes ffprobe and returns a parsed Result; helper methods
// expose the container duration, size, and primary video stream details
// the clipping pipeline needs for validation and reporting.
package ffprobe
