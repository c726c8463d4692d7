// Package caldate parses loosely formatted date strings into calendar dates.
//
// A Date carries no time of day or zone, so equality and ordering are by
// calendar day only. The zero Date stands for "no date".
package caldate

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date is a calendar day. The zero value means "no date".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Of returns the calendar day of t in t's own location.
func Of(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// New builds a Date, normalizing out-of-range months and days the way
// time.Date does (31 February becomes 2 or 3 March).
func New(year int, month time.Month, day int) Date {
	return Of(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// IsZero reports whether d is the null date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Compare returns -1, 0 or +1. Both dates must be non-null.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool { return d.Compare(other) > 0 }

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return Of(d.Time().AddDate(0, 0, n))
}

// String formats d as dd-mm-yyyy, or "-" for the null date.
func (d Date) String() string {
	if d.IsZero() {
		return "-"
	}
	return d.Time().Format("02-01-2006")
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

var (
	dmyRe = regexp.MustCompile(`^(\d{1,2})[/\-.\s](\d{1,2})[/\-.\s](\d{2,4})$`)
	ymdRe = regexp.MustCompile(`^(\d{4})[/\-.\s](\d{1,2})[/\-.\s](\d{1,2})$`)
)

// fallbackLayouts are tried in order once the numeric forms fail.
// 02-Jan-2006 is what the record source emits for end dates.
var fallbackLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02-Jan-2006",
	"2-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// Parse converts raw into a Date. It accepts dd-mm-yyyy, then yyyy-mm-dd
// (separators -, /, . or whitespace), then a set of textual and ISO layouts
// whose time of day is dropped. Empty, "-" and "null" yield false.
func Parse(raw string) (Date, bool) {
	s := strings.TrimSpace(raw)
	if isBlank(s) {
		return Date{}, false
	}
	if d, ok := ParseDMY(s); ok {
		return d, true
	}
	if m := ymdRe.FindStringSubmatch(s); m != nil {
		return New(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3])), true
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Of(t), true
		}
	}
	return Date{}, false
}

// ParseDMY accepts only the day-first numeric form. Two-digit years are
// taken as 20yy.
func ParseDMY(raw string) (Date, bool) {
	s := strings.TrimSpace(raw)
	if isBlank(s) {
		return Date{}, false
	}
	m := dmyRe.FindStringSubmatch(s)
	if m == nil {
		return Date{}, false
	}
	year := atoi(m[3])
	if year < 100 {
		year += 2000
	}
	return New(year, time.Month(atoi(m[2])), atoi(m[1])), true
}

func isBlank(s string) bool {
	return s == "" || s == "-" || strings.EqualFold(s, "null")
}

// atoi is only fed regexp digit groups.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
