// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package asdu

import (
	"encoding/binary"
	"time"
)

// CP56Time2a encodes t as a seven octet time tag in loc (UTC when nil).
func CP56Time2a(t time.Time, loc *time.Location) []byte {
	if loc == nil {
		loc = time.UTC
	}
	ts := t.In(loc)
	msec := ts.Nanosecond()/int(time.Millisecond) + ts.Second()*1000
	b := make([]byte, 7)
	binary.LittleEndian.PutUint16(b, uint16(msec))
	b[2] = byte(ts.Minute())
	b[3] = byte(ts.Hour())
	b[4] = byte(ts.Weekday()<<5) | byte(ts.Day())
	if ts.Weekday() == time.Sunday {
		b[4] = 7<<5 | byte(ts.Day())
	}
	b[5] = byte(ts.Month())
	b[6] = byte(ts.Year() - 2000)
	return b
}

// ParseCP56Time2a decodes a seven octet time tag. The second result is
// false when the invalid flag is set or the octets do not form a date.
func ParseCP56Time2a(b []byte, loc *time.Location) (time.Time, bool) {
	if len(b) < 7 || b[2]&0x80 == 0x80 {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	msec := int(binary.LittleEndian.Uint16(b))
	minute := int(b[2] & 0x3f)
	hour := int(b[3] & 0x1f)
	day := int(b[4] & 0x1f)
	month := time.Month(b[5] & 0x0f)
	year := 2000 + int(b[6]&0x7f)
	if day < 1 || month < 1 || month > 12 || minute > 59 || hour > 23 || msec > 59999 {
		return time.Time{}, false
	}
	return time.Date(year, month, day, hour, minute, msec/1000, (msec%1000)*int(time.Millisecond), loc), true
}

// CP24Time2a encodes the millisecond and minute part of t.
func CP24Time2a(t time.Time, loc *time.Location) []byte {
	return CP56Time2a(t, loc)[:3]
}

// ParseCP24Time2a decodes a three octet time tag. Hour and date are taken
// from ref, moving back one hour when the result would lie after ref.
func ParseCP24Time2a(b []byte, ref time.Time, loc *time.Location) (time.Time, bool) {
	if len(b) < 3 || b[2]&0x80 == 0x80 {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	msec := int(binary.LittleEndian.Uint16(b))
	minute := int(b[2] & 0x3f)
	if minute > 59 || msec > 59999 {
		return time.Time{}, false
	}
	r := ref.In(loc)
	t := time.Date(r.Year(), r.Month(), r.Day(), r.Hour(), minute, msec/1000, (msec%1000)*int(time.Millisecond), loc)
	if t.After(r) {
		t = t.Add(-time.Hour)
	}
	return t, true
}

// CP16Time2a encodes a millisecond count.
func CP16Time2a(msec uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, msec)
}
