// Package daemon runs clipd as a long-lived background service.
//
// It combines the HTTP API, the periodic cache eviction loop, and flock-based
// locking into a single lifecycle so only one instance ever shares the
// database and cache directory. Batch submissions arrive over the API, run
// asynchronously on the pipeline, and stay queryable until the daemon stops.
//
// Keep orchestration logic here: individual pipeline stages live in their
// respective packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
