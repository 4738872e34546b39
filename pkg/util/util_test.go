package util

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestParseClock(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"9:05":  "09:05",
		"14:00": "14:00",
		"23:59": "23:59",
	}
	for in, want := range cases {
		got, err := ParseClock(in)
		if err != nil {
			t.Errorf("ParseClock(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Expected ParseClock(%q) = %q, got %q", in, want, got)
		}
	}
	for _, bad := range []string{"24:00", "12:60", "noon", "12:00 pm"} {
		if _, err := ParseClock(bad); err == nil {
			t.Errorf("Expected ParseClock(%q) to fail", bad)
		}
	}
}

func TestFindDate(t *testing.T) {
	ref := civil.Date{Year: 2025, Month: time.December, Day: 30}

	d, raw, ok := FindDate("deliver 05.01.2026 to centre", ref)
	if !ok || raw != "05.01.2026" || d != (civil.Date{Year: 2026, Month: time.January, Day: 5}) {
		t.Errorf("Expected 2026-01-05, got %v %q %v", d, raw, ok)
	}

	// No year: rolls over when the day already passed.
	d, _, ok = FindDate("call on 02.01", ref)
	if !ok || d != (civil.Date{Year: 2026, Month: time.January, Day: 2}) {
		t.Errorf("Expected 2026-01-02, got %v", d)
	}

	if _, _, ok := FindDate("at 14.75", ref); ok {
		t.Errorf("Expected no date in invalid input")
	}
}

func TestParseDateFormats(t *testing.T) {
	want := civil.Date{Year: 2025, Month: time.March, Day: 7}
	for _, in := range []string{"07.03.2025", "2025-03-07"} {
		got, err := ParseDate(in)
		if err != nil {
			t.Fatalf("ParseDate(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("Expected %v, got %v", want, got)
		}
	}
	if FormatDate(want) != "07.03.2025" {
		t.Errorf("Expected 07.03.2025, got %s", FormatDate(want))
	}
}

func TestAtUsesLocation(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	d := civil.Date{Year: 2025, Month: time.May, Day: 1}
	got, err := At(d, "9:30", loc)
	if err != nil {
		t.Fatalf("At failed: %v", err)
	}
	want := time.Date(2025, time.May, 1, 6, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestLookupWeekday(t *testing.T) {
	for token, want := range map[string]time.Weekday{
		"Tuesday": time.Tuesday,
		"tue":     time.Tuesday,
		"Вторник": time.Tuesday,
		"пт":      time.Friday,
		"SUN":     time.Sunday,
	} {
		got, ok := LookupWeekday(token)
		if !ok || got != want {
			t.Errorf("Expected %q -> %v, got %v (%v)", token, want, got, ok)
		}
	}
	if _, ok := LookupWeekday("someday"); ok {
		t.Errorf("Expected unknown token to fail")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" Centre , ,North,")
	if len(got) != 2 || got[0] != "Centre" || got[1] != "North" {
		t.Errorf("Expected [Centre North], got %v", got)
	}
}
