package qlid_test

import (
	"errors"
	"testing"

	"qline/internal/qlid"
)

func TestFormatTickKnownValues(t *testing.T) {
	cases := []struct {
		tick uint64
		want string
	}{
		{0, "QLID0000000000"},
		{1, "QLID0000000001"},
		{9_999_999_999, "QLID9999999999"},
		{10_000_000_000, "QLIDA0000000000"},
		{10_000_000_001, "QLIDA0000000001"},
		{20_000_000_000, "QLIDB0000000000"},
		{260_000_000_000, "QLIDZ0000000000"},
		{270_000_000_000, "QLIDAA0000000000"},
	}
	for _, tc := range cases {
		if got := qlid.Items.FormatTick(tc.tick); got != tc.want {
			t.Errorf("FormatTick(%d) = %q, want %q", tc.tick, got, tc.want)
		}
	}
}

func TestTickRoundTrip(t *testing.T) {
	ticks := []uint64{0, 1, 42, 9_999_999_999, 10_000_000_000, 259_999_999_999, 260_000_000_000, 7_031_415_926_535}
	for _, tick := range ticks {
		id := qlid.Items.FormatTick(tick)
		back, err := qlid.Items.ParseTick(id)
		if err != nil {
			t.Fatalf("ParseTick(%q) failed: %v", id, err)
		}
		if back != tick {
			t.Fatalf("round trip %d -> %q -> %d", tick, id, back)
		}
	}
	// Dense sweep across the series boundary.
	for tick := uint64(9_999_999_990); tick < 10_000_000_010; tick++ {
		id := qlid.Items.FormatTick(tick)
		back, err := qlid.Items.ParseTick(id)
		if err != nil || back != tick {
			t.Fatalf("round trip at boundary %d -> %q -> %d (%v)", tick, id, back, err)
		}
	}
}

func TestIsValid(t *testing.T) {
	valid := []string{
		"QLID0000000001",
		"QLID9999999999",
		"QLIDA0000000000",
		"QLIDZZ0123456789",
	}
	for _, id := range valid {
		if !qlid.Items.IsValid(id) {
			t.Errorf("IsValid(%q) = false, want true", id)
		}
	}

	invalid := []string{
		"",
		"QLID",
		"QLID123",                // too few digits
		"QLID00000000001",        // digits in series position
		"QLIDa0000000001",        // lowercase series
		"QLID000000000X",         // letter in counter
		"qlid0000000001",         // lowercase prefix
		"QCRT0000000001",         // wrong namespace
		"P1BBY-QLID0000000001",   // compound payloads are not bare identifiers
		"QLID 0000000001",        // embedded space
		"QLIDA00000000001234567", // oversized
	}
	for _, id := range invalid {
		if qlid.Items.IsValid(id) {
			t.Errorf("IsValid(%q) = true, want false", id)
		}
	}
}

func TestParseScan(t *testing.T) {
	cases := []struct {
		input         string
		wantContainer string
		wantTick      uint64
	}{
		{"QLID0000000001", "", 1},
		{"P1BBY-QLID0000000001", "P1BBY", 1},
		{"TOTE-42-QLIDA0000000000", "TOTE-42", 10_000_000_000},
		{"  QLID0000000007  ", "", 7},
	}
	for _, tc := range cases {
		got, err := qlid.Items.ParseScan(tc.input)
		if err != nil {
			t.Fatalf("ParseScan(%q) failed: %v", tc.input, err)
		}
		if got.ContainerID != tc.wantContainer || got.Tick != tc.wantTick {
			t.Fatalf("ParseScan(%q) = %+v, want container %q tick %d", tc.input, got, tc.wantContainer, tc.wantTick)
		}
	}

	for _, input := range []string{"", "P1BBY", "P1BBY-", "P1BBY-QLID12", "-QLID0000000001"} {
		if _, err := qlid.Items.ParseScan(input); !errors.Is(err, qlid.ErrInvalidFormat) {
			t.Errorf("ParseScan(%q) error = %v, want ErrInvalidFormat", input, err)
		}
	}
}

func TestCertificationScheme(t *testing.T) {
	serial := qlid.Certifications.FormatTick(12)
	if serial != "QCRT0000000012" {
		t.Fatalf("unexpected serial %q", serial)
	}
	if qlid.Certifications.IsValid("QLID0000000012") {
		t.Fatal("certification scheme accepted an item identifier")
	}
	tick, err := qlid.Certifications.ParseTick(serial)
	if err != nil || tick != 12 {
		t.Fatalf("ParseTick(%q) = %d, %v", serial, tick, err)
	}
}
