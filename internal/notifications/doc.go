// Package notifications delivers pipeline milestone events via pluggable
// notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. The
// lifecycle engine and the certification issuer depend only on the Service
// interface.
package notifications
