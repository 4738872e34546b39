// Package parse turns free text into task drafts. The heuristic grammar is
// deterministic and always available; an LLM oracle may fill in what it
// missed.
package parse

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/cadence"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/harrisonrobin/taskbot/pkg/recurrence"
	"github.com/harrisonrobin/taskbot/pkg/util"
)

// Lexicon lists the names the heuristic parser recognizes.
type Lexicon struct {
	Suppliers  []string `json:"suppliers" yaml:"suppliers"`
	Points     []string `json:"points" yaml:"points"`
	Categories []string `json:"categories" yaml:"categories"`
}

var (
	ruleStarts  = map[string]bool{"every": true, "on": true, "каждые": true, "каждый": true, "каждую": true, "каждое": true, "по": true}
	clockLeads  = map[string]bool{"at": true, "by": true, "до": true, "в": true, "к": true}
	dayOffsets  = map[string]int{"today": 0, "сегодня": 0, "tomorrow": 1, "завтра": 1, "послезавтра": 2}
	punctuation = " ,.;:!?"
)

type tokens struct {
	raw  []string
	low  []string
	used []bool
}

func tokenize(text string) *tokens {
	raw := strings.Fields(text)
	t := &tokens{raw: raw, low: make([]string, len(raw)), used: make([]bool, len(raw))}
	for i, r := range raw {
		t.low[i] = strings.ToLower(strings.Trim(r, punctuation))
	}
	return t
}

func (t *tokens) consume(from, to int) {
	for i := from; i < to; i++ {
		t.used[i] = true
	}
}

// phrase finds the unused token sequence matching words, case-insensitively.
func (t *tokens) phrase(words string) (int, int, bool) {
	want := strings.Fields(strings.ToLower(words))
	if len(want) == 0 {
		return 0, 0, false
	}
outer:
	for i := 0; i+len(want) <= len(t.low); i++ {
		for j, w := range want {
			if t.used[i+j] || t.low[i+j] != w {
				continue outer
			}
		}
		return i, i + len(want), true
	}
	return 0, 0, false
}

func (t *tokens) rest() string {
	var parts []string
	for i, r := range t.raw {
		if !t.used[i] {
			parts = append(parts, r)
		}
	}
	return strings.Trim(strings.Join(parts, " "), punctuation+"-")
}

func singleWeekday(r recurrence.Rule) (time.Weekday, bool) {
	if r.Kind != recurrence.Weekdays {
		return 0, false
	}
	var found []time.Weekday
	for wd, on := range r.Days {
		if on {
			found = append(found, time.Weekday(wd))
		}
	}
	if len(found) != 1 {
		return 0, false
	}
	return found[0], true
}

// nextWeekday returns the first date on or after d falling on wd.
func nextWeekday(d civil.Date, wd time.Weekday) civil.Date {
	return d.AddDays((int(wd) - int(util.Weekday(d)) + 7) % 7)
}

// Heuristic parses text with the closed grammar: today/tomorrow keywords,
// DD.MM[.YYYY] dates, HH:MM times, recurrence phrases and lexicon names.
func Heuristic(text string, today civil.Date, lex Lexicon) model.Draft {
	var d model.Draft
	t := tokenize(text)

	// Recurrence phrase: the longest token run from a rule keyword that parses.
	for i := 0; i < len(t.low) && d.Rule == ""; i++ {
		if t.used[i] || !ruleStarts[t.low[i]] {
			continue
		}
		for j := len(t.low); j >= i+2; j-- {
			candidate := strings.Join(t.low[i:j], " ")
			rule, err := recurrence.ParseRule(candidate)
			if err != nil {
				continue
			}
			if rule.Deadline != "" {
				d.Deadline = rule.Deadline
			}
			t.consume(i, j)
			// "on Friday" names one day; only "on Mon, Thu" or "every Fri" repeat.
			if wd, ok := singleWeekday(rule); ok && t.low[i] == "on" {
				if !d.HasDate {
					d.Date, d.HasDate = nextWeekday(today, wd), true
				}
			} else {
				d.Rule = rule.String()
			}
			break
		}
	}

	for i, low := range t.low {
		if t.used[i] {
			continue
		}
		if off, ok := dayOffsets[low]; ok && !d.HasDate {
			if low == "tomorrow" && i >= 2 && t.low[i-2] == "day" && t.low[i-1] == "after" {
				off = 2
				t.consume(i-2, i)
			}
			d.Date, d.HasDate = today.AddDays(off), true
			t.used[i] = true
			continue
		}
		if date, raw, ok := util.FindDate(low, today); ok && raw == low && !d.HasDate {
			d.Date, d.HasDate = date, true
			t.used[i] = true
			continue
		}
		if clock, err := util.ParseClock(low); err == nil && clock != "" && d.Deadline == "" {
			d.Deadline = clock
			t.used[i] = true
			if i > 0 && !t.used[i-1] && clockLeads[t.low[i-1]] {
				t.used[i-1] = true
			}
		}
	}

	for _, point := range lex.Points {
		if from, to, ok := t.phrase(point); ok {
			d.Subcategory = point
			t.consume(from, to)
			break
		}
	}
	for _, cat := range lex.Categories {
		if from, to, ok := t.phrase(cat); ok {
			d.Category = cat
			t.consume(from, to)
			break
		}
	}

	// Supplier names stay in the description; they are matched loosely.
	var profiles []model.SupplierProfile
	for _, s := range lex.Suppliers {
		profiles = append(profiles, model.SupplierProfile{Name: s, Active: true})
	}
	if p := cadence.Resolve(profiles, text, nil); p != nil {
		d.Supplier = p.Name
	}

	d.Description = t.rest()
	if d.Description == "" {
		d.Description = strings.TrimSpace(text)
	}
	return d
}
