// Package present renders ledger query results as chat-ready text.
package present

import (
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/harrisonrobin/taskbot/pkg/util"
)

// Section holds the instances of one sub-category, ordered by deadline.
type Section struct {
	Subcategory string
	Items       []model.Instance
}

// Group holds the sections of one category.
type Group struct {
	Category string
	Sections []Section
}

const noCategory = "Other"

// GroupInstances groups by category, then sub-category, then deadline.
// Instances without a deadline sort after those with one.
func GroupInstances(instances []model.Instance) []Group {
	byCat := make(map[string]map[string][]model.Instance)
	for _, inst := range instances {
		cat := inst.Category
		if cat == "" {
			cat = noCategory
		}
		if byCat[cat] == nil {
			byCat[cat] = make(map[string][]model.Instance)
		}
		byCat[cat][inst.Subcategory] = append(byCat[cat][inst.Subcategory], inst)
	}

	var groups []Group
	for _, cat := range sortedKeys(byCat) {
		g := Group{Category: cat}
		subs := byCat[cat]
		for _, sub := range sortedKeys(subs) {
			items := subs[sub]
			sort.SliceStable(items, func(i, j int) bool {
				a, b := items[i].Deadline, items[j].Deadline
				if (a == "") != (b == "") {
					return b == ""
				}
				if a != b {
					return a < b
				}
				return items[i].Description < items[j].Description
			})
			g.Sections = append(g.Sections, Section{Subcategory: sub, Items: items})
		}
		groups = append(groups, g)
	}
	return groups
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		// Empty sub-categories and the catch-all category go last.
		if (keys[i] == "" || keys[i] == noCategory) != (keys[j] == "" || keys[j] == noCategory) {
			return keys[j] == "" || keys[j] == noCategory
		}
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})
	return keys
}

// Flatten returns the instances in display order; position i is task number i+1.
func Flatten(groups []Group) []model.Instance {
	var out []model.Instance
	for _, g := range groups {
		for _, s := range g.Sections {
			out = append(out, s.Items...)
		}
	}
	return out
}

func statusIcon(inst model.Instance) string {
	if inst.Done() {
		return "✅"
	}
	return "⬜"
}

func line(n int, inst model.Instance) string {
	s := fmt.Sprintf("%s %d. %s", statusIcon(inst), n, inst.Description)
	if inst.Deadline != "" {
		s += fmt.Sprintf(" (until %s)", inst.Deadline)
	}
	return s
}

// Listing renders grouped instances with running numbers and returns the
// instances in the numbered order.
func Listing(instances []model.Instance) (string, []model.Instance) {
	groups := GroupInstances(instances)
	var b strings.Builder
	n := 0
	for _, g := range groups {
		fmt.Fprintf(&b, "\n%s\n", g.Category)
		for _, s := range g.Sections {
			indent := ""
			if s.Subcategory != "" {
				fmt.Fprintf(&b, "  %s\n", s.Subcategory)
				indent = "  "
			}
			for _, inst := range s.Items {
				n++
				fmt.Fprintf(&b, "%s  %s\n", indent, line(n, inst))
			}
		}
	}
	return b.String(), Flatten(groups)
}

// Plan renders the task list of one day.
func Plan(date civil.Date, instances []model.Instance) (string, []model.Instance) {
	if len(instances) == 0 {
		return fmt.Sprintf("📅 No tasks for %s.", util.FormatDate(date)), nil
	}
	body, order := Listing(instances)
	return fmt.Sprintf("📅 Plan for %s (%s):\n%s", util.FormatDate(date), util.Weekday(date), body), order
}

// Report renders the evening summary: completed tasks and tasks carried over.
func Report(date civil.Date, instances []model.Instance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌙 Summary for %s:\n\n", util.FormatDate(date))
	var undone []model.Instance
	for _, inst := range Flatten(GroupInstances(instances)) {
		if inst.Done() {
			fmt.Fprintf(&b, "✅ %s\n", inst.Description)
		} else {
			undone = append(undone, inst)
		}
	}
	for _, inst := range undone {
		fmt.Fprintf(&b, "🔄 Carried over: %s\n", inst.Description)
	}
	return b.String()
}

// Reminder renders a deadline reminder.
func Reminder(inst model.Instance) string {
	return fmt.Sprintf("⚠️ Reminder: %s (until %s)", inst.Description, inst.Deadline)
}

// Created confirms newly created instances.
func Created(instances []model.Instance) string {
	var b strings.Builder
	for _, inst := range instances {
		fmt.Fprintf(&b, "➕ %s: %s", util.FormatDate(inst.Date), inst.Description)
		if inst.Subcategory != "" {
			fmt.Fprintf(&b, " [%s]", inst.Subcategory)
		}
		if inst.Deadline != "" {
			fmt.Fprintf(&b, " (until %s)", inst.Deadline)
		}
		b.WriteString("\n")
	}
	return b.String()
}
