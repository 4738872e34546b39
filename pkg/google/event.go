package google

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/harrisonrobin/taskbot/pkg/util"
	"google.golang.org/api/calendar/v3"
)

const (
	// DedupKeyProperty is the private extended property linking an event to its instance.
	DedupKeyProperty = "dedup_key"

	// EventDuration is the length of the event ending at an instance deadline.
	EventDuration = 30 * time.Minute
)

// EventSummary prefixes the description with the instance state: "✓" for
// done, "!" for a pending task past its deadline.
func EventSummary(inst model.Instance, deadline, now time.Time) string {
	switch {
	case inst.Done():
		return "✓ " + inst.Description
	case deadline.Before(now):
		return "! " + inst.Description
	}
	return inst.Description
}

func eventDescription(inst model.Instance) string {
	var b strings.Builder
	if inst.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", inst.Category)
	}
	if inst.Subcategory != "" {
		fmt.Fprintf(&b, "Subcategory: %s\n", inst.Subcategory)
	}
	fmt.Fprintf(&b, "Origin: %s\n", inst.Origin)
	fmt.Fprintf(&b, "Key: %s", inst.Key)
	return b.String()
}

// InstanceToEvent converts an instance with a deadline into a calendar event
// ending at the deadline. Instances without a deadline have no event.
func InstanceToEvent(inst model.Instance, loc *time.Location, colorID string, now time.Time) (*calendar.Event, error) {
	if inst.Deadline == "" {
		return nil, nil
	}
	end, err := util.At(inst.Date, inst.Deadline, loc)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", inst.Key, err)
	}
	start := end.Add(-EventDuration)
	return &calendar.Event{
		Summary:     EventSummary(inst, end, now),
		Description: eventDescription(inst),
		ColorId:     colorID,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: loc.String()},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: loc.String()},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{DedupKeyProperty: inst.Key},
		},
	}, nil
}

// EventNeedsUpdate returns a patch holding the fields of target that differ
// from existing, or nil when the event is current.
func EventNeedsUpdate(existing, target *calendar.Event) (*calendar.Event, error) {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}

	same, err := sameTime(existing.Start, target.Start)
	if err != nil {
		return nil, err
	}
	sameEnd, err := sameTime(existing.End, target.End)
	if err != nil {
		return nil, err
	}
	if !same || !sameEnd {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}

	if needsUpdate {
		return patch, nil
	}
	return nil, nil
}

func sameTime(a, b *calendar.EventDateTime) (bool, error) {
	if a == nil || b == nil || a.DateTime == "" || b.DateTime == "" {
		return false, nil
	}
	at, err := time.Parse(time.RFC3339, a.DateTime)
	if err != nil {
		return false, err
	}
	bt, err := time.Parse(time.RFC3339, b.DateTime)
	if err != nil {
		return false, err
	}
	return at.Equal(bt), nil
}
