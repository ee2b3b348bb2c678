// Package service orchestrates the full batch pipeline: parse, pad,
// validate, admit, execute, package, and record. It is the only package
// that wires the stage packages together; both the CLI and the daemon go
// through it.
package service
