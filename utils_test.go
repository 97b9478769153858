// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gounzip

import (
	"strings"
	"testing"
	"time"
)

func TestMsDosToTime(t *testing.T) {
	tests := []struct {
		name     string
		dosDate  uint16
		dosTime  uint16
		expected time.Time
	}{
		{
			name:     "Epoch start",
			dosDate:  0x0021, // 1980-01-01
			dosTime:  0x0000,
			expected: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "Regular date",
			dosDate:  0x58A1, // 2024-05-01
			dosTime:  0x63C0, // 12:30:00
			expected: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		},
		{
			name:     "Invalid month clamped",
			dosDate:  0x0001, // month 0
			dosTime:  0x0000,
			expected: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := msDosToTime(tt.dosDate, tt.dosTime)
			if !got.Equal(tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTimeToMsDosRoundTrip(t *testing.T) {
	// DOS time has two-second resolution, so use an even second.
	orig := time.Date(2023, 11, 17, 9, 41, 22, 0, time.UTC)

	dosDate, dosTime := timeToMsDos(orig)
	got := msDosToTime(dosDate, dosTime)

	if !got.Equal(orig) {
		t.Errorf("round trip: got %v, want %v", got, orig)
	}
}

func TestDecodeText(t *testing.T) {
	// 0x82 is é in CP437.
	raw := "caf\x82"

	if got := decodeText(raw, 0, nil); got != "café" {
		t.Errorf("CP437 decode: got %q, want %q", got, "café")
	}

	// With the UTF-8 flag the bytes pass through unchanged.
	if got := decodeText(raw, utf8Flag, nil); got != raw {
		t.Errorf("UTF-8 passthrough: got %q", got)
	}

	// A custom decoder wins over the default.
	upper := func(s string) string { return strings.ToUpper(s) }
	if got := decodeText("abc", 0, upper); got != "ABC" {
		t.Errorf("custom decoder: got %q", got)
	}
}

func TestHasMeta(t *testing.T) {
	if hasMeta("plain/path.txt") {
		t.Error("plain path reported as pattern")
	}
	for _, p := range []string{"*.txt", "file?.log", "[ab].go"} {
		if !hasMeta(p) {
			t.Errorf("%q not detected as pattern", p)
		}
	}
}
