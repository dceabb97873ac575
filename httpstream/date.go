// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpstream

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var shortMonths = [...]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

var shortWeekdays = [...]string{
	"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat",
}

// timezoneOffsets covers the tokens accepted on the wire; all are folded
// to UTC since every emitted date is GMT.
var timezoneOffsets = map[string]bool{
	"UT": true, "GMT": true,
	"EST": true, "EDT": true,
	"CST": true, "CDT": true,
	"MST": true, "MDT": true,
	"PST": true, "PDT": true,
}

func monthIndex(name string) (int, bool) {
	for i, m := range shortMonths {
		if strings.EqualFold(m, name) {
			return i + 1, true
		}
	}
	return 0, false
}

// ParseDate parses an HTTP date value in any of the three formats
// permitted on the wire: RFC 1123 ("Sun, 06 Nov 1994 08:49:37 GMT"),
// RFC 850 ("Sunday, 06-Nov-94 08:49:37 GMT"), or ANSI C asctime
// ("Sun Nov  6 08:49:37 1994"). Two-digit years pivot at 50: values
// 50-99 are 1950-1999, values 0-49 are 2000-2049.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	if t, ok := parseRFC1123Date(value); ok {
		return t, nil
	}
	if t, ok := parseRFC850Date(value); ok {
		return t, nil
	}
	if t, ok := parseANSICDate(value); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("httpstream: unrecognized date format %q", value)
}

// FormatDate renders t in the wire form every response and request this
// engine emits uses: RFC 1123 in GMT, e.g. "Sun, 06 Nov 1994 08:49:37 GMT".
func FormatDate(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s, %02d %s %04d %02d:%02d:%02d GMT",
		shortWeekdays[t.Weekday()], t.Day(), shortMonths[t.Month()-1], t.Year(),
		t.Hour(), t.Minute(), t.Second())
}

func pivotYear(y int) int {
	if y < 100 {
		if y >= 50 {
			return 1900 + y
		}
		return 2000 + y
	}
	return y
}

// parseClock parses a bare "08:49:37" clock field.
func parseClock(timeTok string) (h, m, s int, ok bool) {
	parts := strings.Split(timeTok, ":")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var err error
	if h, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, false
	}
	if m, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, 0, false
	}
	if s, err = strconv.Atoi(parts[2]); err != nil {
		return 0, 0, 0, false
	}
	return h, m, s, true
}

// parseClockAndZone parses "08:49:37" plus a trailing timezone token; the
// token must be one of the wire-recognized names since every emitted date
// is GMT and we don't need to honor a numeric offset we'll never produce.
func parseClockAndZone(timeTok, zoneTok string) (h, m, s int, ok bool) {
	if !timezoneOffsets[strings.ToUpper(zoneTok)] {
		return 0, 0, 0, false
	}
	return parseClock(timeTok)
}

// parseRFC1123Date handles "Sun, 06 Nov 1994 08:49:37 GMT".
func parseRFC1123Date(value string) (time.Time, bool) {
	fields := strings.Fields(value)
	if len(fields) != 6 {
		return time.Time{}, false
	}
	if !strings.HasSuffix(fields[0], ",") {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(fields[1])
	if err != nil {
		return time.Time{}, false
	}
	month, ok := monthIndex(fields[2])
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(fields[3])
	if err != nil {
		return time.Time{}, false
	}
	hh, mm, ss, ok := parseClockAndZone(fields[4], fields[5])
	if !ok {
		return time.Time{}, false
	}
	return time.Date(pivotYear(year), time.Month(month), day, hh, mm, ss, 0, time.UTC), true
}

// parseRFC850Date handles "Sunday, 06-Nov-94 08:49:37 GMT".
func parseRFC850Date(value string) (time.Time, bool) {
	fields := strings.Fields(value)
	if len(fields) != 4 {
		return time.Time{}, false
	}
	if !strings.HasSuffix(fields[0], ",") {
		return time.Time{}, false
	}
	dmy := strings.Split(fields[1], "-")
	if len(dmy) != 3 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dmy[0])
	if err != nil {
		return time.Time{}, false
	}
	month, ok := monthIndex(dmy[1])
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(dmy[2])
	if err != nil {
		return time.Time{}, false
	}
	hh, mm, ss, ok := parseClockAndZone(fields[2], fields[3])
	if !ok {
		return time.Time{}, false
	}
	return time.Date(pivotYear(year), time.Month(month), day, hh, mm, ss, 0, time.UTC), true
}

// parseANSICDate handles "Sun Nov  6 08:49:37 1994"; the day field may be
// space-padded instead of zero-padded, so strings.Fields is load-bearing
// here (it collapses the double space before single-digit days).
func parseANSICDate(value string) (time.Time, bool) {
	fields := strings.Fields(value)
	if len(fields) != 5 {
		return time.Time{}, false
	}
	month, ok := monthIndex(fields[1])
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(fields[2])
	if err != nil {
		return time.Time{}, false
	}
	hh, mm, ss, ok := parseClock(fields[3])
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(fields[4])
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(pivotYear(year), time.Month(month), day, hh, mm, ss, 0, time.UTC), true
}
