// Command qline is the operator CLI for the refurbishment pipeline. It works
// directly against the job database, so it functions whether or not qlined is
// running; the status command additionally queries the daemon's HTTP API.
package main
