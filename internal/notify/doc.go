// Package notify delivers batch lifecycle events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Progress events are throttled twice over: a percent step filters
// out small movements and a rate limiter bounds how often the remaining
// events leave the process.
package notify
