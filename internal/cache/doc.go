// Package cache implements the content-addressed result cache.
//
// Results are keyed by a digest of the source file's leading bytes plus the
// operation and its parameters, so identical requests against identical
// inputs reuse the previous output instead of re-running the tool. Entry
// metadata lives in the store; the output files live under the cache
// directory named by key.
package cache
