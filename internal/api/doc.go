// Package api defines wire-format types, converters, and the service layer
// shared by the HTTP daemon and the CLI. It translates internal job models
// into transport-friendly DTOs so consumers never couple to storage types.
//
// # Key Types
//
// JobView: transport representation of a job with its state, attempt budget,
// grade, and timestamps.
//
// ReportBundle: a job plus its full audit trail, step data, diagnoses, and
// certification history, assembled for the report endpoints.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (jobs.State, certify.Level)
// are exposed as their stored uppercase strings; human-friendly labels are a
// presentation concern handled by LabelForState. Timestamps use RFC3339 with
// milliseconds.
package api
