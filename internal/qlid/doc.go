// Package qlid implements the item identifier scheme used across the
// refurbishment pipeline.
//
// A QLID is the literal prefix "QLID", an optional series of capital letters,
// and exactly ten decimal digits, e.g. QLID0000000001 or QLIDA0000000000. The
// series letters are a bijective base-26 extension of the counter: once the
// ten-digit counter would roll over, the series advances instead, so the
// identifier space never resets and stays ordered. Every identifier encodes a
// single unsigned tick; ticks are allocated from a durable counter and never
// reused.
//
// The package also parses compound scan payloads of the form
// "<containerID>-QLID…" produced by handheld scanners at intake.
package qlid
