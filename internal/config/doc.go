// Package config loads and validates clipd configuration.
//
// Configuration lives in a TOML file (default ~/.config/clipd/config.toml)
// and is decoded into Config. Load applies defaults, expands ~ in path
// fields, and validates the result so downstream components can assume a
// usable configuration object.
package config
