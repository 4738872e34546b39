package present

import (
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = civil.Date{Year: 2025, Month: time.January, Day: 6}

func inst(cat, sub, text, deadline string, done bool) model.Instance {
	i := model.Instance{Owner: "42", Date: day, Category: cat, Subcategory: sub, Description: text, Deadline: deadline}
	if done {
		i.Status = model.StatusDone
	}
	return i.WithKey()
}

func TestGroupInstancesOrdering(t *testing.T) {
	groups := GroupInstances([]model.Instance{
		inst("Procurement", "North", "Order bread", "", false),
		inst("Cleaning", "", "Mop", "18:00", false),
		inst("Procurement", "Centre", "Order milk", "15:00", false),
		inst("", "", "Misc", "", false),
		inst("Procurement", "Centre", "Accept delivery", "10:00", true),
		inst("Procurement", "", "Call supplier", "", false),
	})

	var cats []string
	for _, g := range groups {
		cats = append(cats, g.Category)
	}
	assert.Equal(t, []string{"Cleaning", "Procurement", "Other"}, cats)

	proc := groups[1]
	require.Len(t, proc.Sections, 3)
	assert.Equal(t, "Centre", proc.Sections[0].Subcategory)
	assert.Equal(t, "North", proc.Sections[1].Subcategory)
	assert.Equal(t, "", proc.Sections[2].Subcategory)
	assert.Equal(t, "Accept delivery", proc.Sections[0].Items[0].Description)
	assert.Equal(t, "Order milk", proc.Sections[0].Items[1].Description)

	flat := Flatten(groups)
	require.Len(t, flat, 6)
	assert.Equal(t, "Mop", flat[0].Description)
	assert.Equal(t, "Misc", flat[5].Description)
}

func TestPlanNumbersMatchOrder(t *testing.T) {
	text, order := Plan(day, []model.Instance{
		inst("Procurement", "Centre", "Order milk", "15:00", false),
		inst("Cleaning", "", "Mop", "18:00", true),
	})
	require.Len(t, order, 2)
	assert.True(t, strings.HasPrefix(text, "📅 Plan for 06.01.2025 (Monday):"))
	assert.Contains(t, text, "✅ 1. Mop (until 18:00)")
	assert.Contains(t, text, "⬜ 2. Order milk (until 15:00)")
	assert.Equal(t, "Mop", order[0].Description)

	empty, none := Plan(day, nil)
	assert.Equal(t, "📅 No tasks for 06.01.2025.", empty)
	assert.Nil(t, none)
}

func TestReport(t *testing.T) {
	text := Report(day, []model.Instance{
		inst("Procurement", "", "Order milk", "15:00", false),
		inst("Cleaning", "", "Mop", "", true),
	})
	assert.Contains(t, text, "🌙 Summary for 06.01.2025")
	assert.Contains(t, text, "✅ Mop")
	assert.Contains(t, text, "🔄 Carried over: Order milk")
	assert.Less(t, strings.Index(text, "✅ Mop"), strings.Index(text, "🔄"))
}

func TestReminderAndCreated(t *testing.T) {
	i := inst("Procurement", "Centre", "Order milk", "15:00", false)
	assert.Equal(t, "⚠️ Reminder: Order milk (until 15:00)", Reminder(i))
	assert.Equal(t, "➕ 06.01.2025: Order milk [Centre] (until 15:00)\n", Created([]model.Instance{i}))
}
