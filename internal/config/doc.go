// Package config loads and validates the qline TOML configuration.
//
// Configuration is resolved from an explicit --config path or the default
// ~/.config/qline/config.toml, merged over compiled defaults. Paths accept a
// leading ~ which is expanded against the current user's home directory.
package config
