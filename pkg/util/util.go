package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// DateLayout is the date format used in the spreadsheet and in chat messages.
const DateLayout = "02.01.2006"

var (
	clockRe = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	dateRe  = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})(?:\.(\d{4}))?\b`)
)

// ParseClock parses a time of day in HH:MM form and returns it normalized
// with a leading zero ("9:05" -> "09:05"). An empty input yields "".
func ParseClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	m := clockRe.FindStringSubmatch(s)
	if m == nil || m[0] != s {
		return "", fmt.Errorf("invalid time of day %q, expected HH:MM", s)
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	return fmt.Sprintf("%02d:%02d", h, min), nil
}

// FindClock returns the first HH:MM occurring anywhere in text, normalized.
func FindClock(text string) (string, bool) {
	m := clockRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	return fmt.Sprintf("%02d:%02d", h, min), true
}

// StripClock removes every HH:MM occurrence from text.
func StripClock(text string) string {
	return clockRe.ReplaceAllString(text, "")
}

// ParseDate accepts DD.MM.YYYY (the spreadsheet format) and YYYY-MM-DD.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return civil.DateOf(t), nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q, expected DD.MM.YYYY", s)
	}
	return d, nil
}

// FindDate returns the first DD.MM.YYYY or DD.MM date in text. A date without
// a year takes the year of ref, rolling over to the next year when that
// would put it before ref.
func FindDate(text string, ref civil.Date) (civil.Date, string, bool) {
	for _, m := range dateRe.FindAllStringSubmatch(text, -1) {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year := ref.Year
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
		d := civil.Date{Year: year, Month: time.Month(month), Day: day}
		if !d.IsValid() {
			continue
		}
		if m[3] == "" && d.Before(ref) {
			d.Year++
		}
		return d, m[0], true
	}
	return civil.Date{}, "", false
}

// FormatDate renders d in the spreadsheet format.
func FormatDate(d civil.Date) string {
	return d.In(time.UTC).Format(DateLayout)
}

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) civil.Date {
	return civil.DateOf(now.In(loc))
}

// Weekday returns the day of the week of d.
func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

// At returns the instant of clock (HH:MM) on date d in loc. An empty clock
// means the start of the day.
func At(d civil.Date, clock string, loc *time.Location) (time.Time, error) {
	t := d.In(loc)
	if clock == "" {
		return t, nil
	}
	norm, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	h, _ := strconv.Atoi(norm[:2])
	m, _ := strconv.Atoi(norm[3:])
	return time.Date(d.Year, d.Month, d.Day, h, m, 0, 0, loc), nil
}

// SplitList splits a comma separated cell value, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
