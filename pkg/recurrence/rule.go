package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/util"
)

// RuleKind distinguishes the two recurrence shapes.
type RuleKind int

const (
	Interval RuleKind = iota + 1
	Weekdays
)

// Rule is a parsed recurrence rule.
type Rule struct {
	Kind     RuleKind
	Every    int // Interval: due every Every days on the epoch grid
	Days     [7]bool
	Deadline string // optional HH:MM overriding the template deadline
}

// RuleError describes a rule that could not be parsed. Templates carrying one
// are never due.
type RuleError struct {
	Rule   string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("invalid recurrence rule %q: %s", e.Rule, e.Reason)
}

var (
	everyWords = map[string]bool{"every": true, "каждые": true, "каждый": true, "каждую": true, "каждое": true}
	onWords    = map[string]bool{"on": true, "по": true}
	dayWords   = map[string]bool{"day": true, "days": true, "день": true, "дня": true, "дней": true}
	atWords    = map[string]bool{"at": true, "в": true}
)

// ParseRule parses one of the three rule forms:
//
//	every <N> days [HH:MM]
//	every <weekday> [HH:MM]
//	on <weekday>[,<weekday>...] [HH:MM]
func ParseRule(s string) (Rule, error) {
	fields := strings.Fields(strings.ToLower(strings.ReplaceAll(s, ",", " , ")))
	if len(fields) < 2 {
		return Rule{}, &RuleError{Rule: s, Reason: "too short"}
	}

	var r Rule
	if clock, err := util.ParseClock(fields[len(fields)-1]); err == nil && clock != "" {
		r.Deadline = clock
		fields = fields[:len(fields)-1]
		if n := len(fields); n > 0 && atWords[fields[n-1]] {
			fields = fields[:n-1]
		}
	}

	head, rest := fields[0], fields[1:]
	switch {
	case everyWords[head]:
		if len(rest) == 2 && dayWords[rest[1]] {
			n, err := strconv.Atoi(rest[0])
			if err != nil || n <= 0 {
				return Rule{}, &RuleError{Rule: s, Reason: fmt.Sprintf("interval %q is not a positive number", rest[0])}
			}
			r.Kind = Interval
			r.Every = n
			return r, nil
		}
		if len(rest) == 1 {
			wd, ok := util.LookupWeekday(rest[0])
			if !ok {
				return Rule{}, &RuleError{Rule: s, Reason: fmt.Sprintf("unknown weekday %q", rest[0])}
			}
			r.Kind = Weekdays
			r.Days[wd] = true
			return r, nil
		}
		return Rule{}, &RuleError{Rule: s, Reason: "expected 'every <N> days' or 'every <weekday>'"}

	case onWords[head]:
		for _, tok := range rest {
			if tok == "," {
				continue
			}
			wd, ok := util.LookupWeekday(tok)
			if !ok {
				return Rule{}, &RuleError{Rule: s, Reason: fmt.Sprintf("unknown weekday %q", tok)}
			}
			r.Days[wd] = true
		}
		if r.Days == [7]bool{} {
			return Rule{}, &RuleError{Rule: s, Reason: "no weekdays listed"}
		}
		r.Kind = Weekdays
		return r, nil
	}
	return Rule{}, &RuleError{Rule: s, Reason: fmt.Sprintf("unknown rule keyword %q", head)}
}

// Due reports whether the rule fires on d. Interval rules are anchored to
// epoch so that results do not depend on when they were first evaluated.
func (r Rule) Due(d, epoch civil.Date) bool {
	switch r.Kind {
	case Interval:
		delta := d.DaysSince(epoch) % r.Every
		if delta < 0 {
			delta += r.Every
		}
		return delta == 0
	case Weekdays:
		return r.Days[util.Weekday(d)]
	}
	return false
}

// String renders the rule in canonical English form.
func (r Rule) String() string {
	var b strings.Builder
	switch r.Kind {
	case Interval:
		fmt.Fprintf(&b, "every %d days", r.Every)
	case Weekdays:
		var days []string
		for wd := time.Monday; ; wd = (wd + 1) % 7 {
			if r.Days[wd] {
				days = append(days, wd.String()[:3])
			}
			if wd == time.Sunday {
				break
			}
		}
		if len(days) == 1 {
			b.WriteString("every " + days[0])
		} else {
			b.WriteString("on " + strings.Join(days, ","))
		}
	}
	if r.Deadline != "" {
		b.WriteString(" " + r.Deadline)
	}
	return b.String()
}
