package recurrence

import (
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	tue := [7]bool{time.Tuesday: true}
	mwf := [7]bool{time.Monday: true, time.Wednesday: true, time.Friday: true}

	cases := []struct {
		in   string
		want Rule
	}{
		{"every 2 days", Rule{Kind: Interval, Every: 2}},
		{"Every 1 day", Rule{Kind: Interval, Every: 1}},
		{"every 3 days 9:00", Rule{Kind: Interval, Every: 3, Deadline: "09:00"}},
		{"every Tuesday", Rule{Kind: Weekdays, Days: tue}},
		{"every Tuesday at 12:00", Rule{Kind: Weekdays, Days: tue, Deadline: "12:00"}},
		{"every tue 12:00", Rule{Kind: Weekdays, Days: tue, Deadline: "12:00"}},
		{"on Mon,Wed,Fri", Rule{Kind: Weekdays, Days: mwf}},
		{"on mon, wed ,fri 18:30", Rule{Kind: Weekdays, Days: mwf, Deadline: "18:30"}},
		{"каждый вторник", Rule{Kind: Weekdays, Days: tue}},
		{"каждые 2 дня", Rule{Kind: Interval, Every: 2}},
		{"по пн,ср,пт в 10:00", Rule{Kind: Weekdays, Days: mwf, Deadline: "10:00"}},
	}
	for _, c := range cases {
		got, err := ParseRule(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseRuleRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"daily",
		"every 0 days",
		"every -2 days",
		"every two days",
		"every someday",
		"every 2 weeks",
		"on",
		"on mon,funday",
		"12:00",
		"sometimes at 12:00",
	} {
		_, err := ParseRule(in)
		require.Error(t, err, in)
		var re *RuleError
		assert.True(t, errors.As(err, &re), in)
	}
}

func TestRuleString(t *testing.T) {
	for _, in := range []string{"every 2 days", "every Tue 12:00", "on Mon,Wed,Fri"} {
		r, err := ParseRule(in)
		require.NoError(t, err)
		again, err := ParseRule(r.String())
		require.NoError(t, err, r.String())
		assert.Equal(t, r, again)
	}
}

func TestIntervalEpochGrid(t *testing.T) {
	epoch := civil.Date{Year: 2025, Month: time.January, Day: 1}
	r := Rule{Kind: Interval, Every: 2}

	for offset := -10; offset <= 400; offset++ {
		d := epoch.AddDays(offset)
		assert.Equal(t, offset%2 == 0, r.Due(d, epoch), "offset %d", offset)
	}
}

func TestWeekdayAcrossYearAndDST(t *testing.T) {
	r, err := ParseRule("every Tuesday")
	require.NoError(t, err)

	// 2024-12-31 is a Tuesday; range spans the new year and the March DST change.
	start := civil.Date{Year: 2024, Month: time.December, Day: 20}
	end := civil.Date{Year: 2025, Month: time.April, Day: 10}
	tuesdays := 0
	for d := start; !d.After(end); d = d.AddDays(1) {
		isTue := d.In(time.UTC).Weekday() == time.Tuesday
		assert.Equal(t, isTue, r.Due(d, DefaultEpoch), d.String())
		if isTue {
			tuesdays++
		}
	}
	assert.Equal(t, 16, tuesdays)
	assert.True(t, r.Due(civil.Date{Year: 2024, Month: time.December, Day: 31}, DefaultEpoch))
	assert.True(t, r.Due(civil.Date{Year: 2025, Month: time.April, Day: 1}, DefaultEpoch))
}
