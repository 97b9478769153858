// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gounzip

import (
	"time"

	"golang.org/x/text/encoding/charmap"
)

// utf8Flag is bit 11 of the general purpose flags: filename and comment
// are encoded in UTF-8. When clear, legacy archives use CP437.
const utf8Flag = 0x800

// TextDecoder converts a legacy-encoded header string to UTF-8. The
// default decoder handles CP437; archives produced with other OEM code
// pages can supply their own via WithTextDecoder.
type TextDecoder func(string) string

// decodeCP437 is the default decoder for non-UTF8 names and comments.
func decodeCP437(s string) string {
	decoded, err := charmap.CodePage437.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return decoded
}

// decodeText decodes a header string according to the general purpose
// flags: UTF-8 when bit 11 is set, otherwise through the decoder.
func decodeText(s string, flags uint16, decoder TextDecoder) string {
	if flags&utf8Flag != 0 || s == "" {
		return s
	}
	if decoder == nil {
		decoder = decodeCP437
	}
	return decoder(s)
}

// msDosToTime converts the DOS date and time bit layouts to time.Time.
// Date: bits 0-4 day, 5-8 month, 9-15 years since 1980.
// Time: bits 0-4 seconds/2, 5-10 minute, 11-15 hour.
func msDosToTime(dosDate uint16, dosTime uint16) time.Time {
	day := dosDate & 0x1F
	month := (dosDate >> 5) & 0x0F
	year := int((dosDate>>9)&0x7F) + 1980
	second := (dosTime & 0x1F) * 2
	minute := (dosTime >> 5) & 0x3F
	hour := (dosTime >> 11) & 0x1F

	if month < 1 || month > 12 {
		month = 1
	}
	if day < 1 || day > 31 {
		day = 1
	}

	return time.Date(year, time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC)
}

// timeToMsDos converts a time.Time to the DOS date and time bit layouts.
func timeToMsDos(t time.Time) (dosDate uint16, dosTime uint16) {
	year := min(max(t.Year()-1980, 0), 127)
	month := uint16(t.Month())
	day := uint16(t.Day())
	hour := uint16(t.Hour())
	minute := uint16(t.Minute())
	second := uint16(t.Second())

	dosDate = uint16(year)<<9 | uint16(month)<<5 | day
	dosTime = uint16(hour)<<11 | uint16(minute)<<5 | uint16(second/2)
	return dosDate, dosTime
}

// hasMeta checks if the string contains pattern matching characters.
func hasMeta(path string) bool {
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '*', '?', '[', '\\':
			return true
		}
	}
	return false
}
