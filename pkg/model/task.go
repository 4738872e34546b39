package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"cloud.google.com/go/civil"
	"golang.org/x/text/cases"
)

// Status is the completion state of an Instance.
type Status string

const (
	StatusPending Status = ""
	StatusDone    Status = "done"
)

// Origin records what created an Instance.
type Origin string

const (
	OriginManual     Origin = "manual"
	OriginRecurrence Origin = "recurrence"
	OriginCadence    Origin = "cadence"
	OriginCarryover  Origin = "carryover"
)

// Kind tells the front-end whether completing an Instance should advance a
// supplier cycle.
type Kind string

const (
	KindTask     Kind = ""
	KindOrder    Kind = "order"
	KindDelivery Kind = "delivery"
)

// Instance is a concrete, dated unit of work.
type Instance struct {
	Key         string
	Owner       string
	Date        civil.Date
	Category    string
	Subcategory string
	Description string
	Deadline    string // HH:MM, empty when the task has no deadline
	Status      Status
	Origin      Origin
	Kind        Kind
}

// Done reports whether the instance is completed.
func (i Instance) Done() bool {
	return i.Status == StatusDone
}

// WithKey returns a copy of i with its dedup key computed.
func (i Instance) WithKey() Instance {
	i.Key = DedupKey(i.Owner, i.Date, i.Category, i.Subcategory, i.Description, i.Deadline)
	return i
}

// DedupKey identifies an instance by its defining fields. Text fields are
// trimmed and case-folded so that "Order X" and "order x " collide.
func DedupKey(owner string, date civil.Date, category, subcategory, description, deadline string) string {
	fold := cases.Fold()
	parts := []string{
		strings.TrimSpace(owner),
		date.String(),
		fold.String(strings.TrimSpace(category)),
		fold.String(strings.TrimSpace(subcategory)),
		fold.String(strings.Join(strings.Fields(description), " ")),
		strings.TrimSpace(deadline),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:8])
}

// Template is a recurrence rule that is not bound to a date. The concrete date
// always belongs to a materialized Instance.
type Template struct {
	Owner       string
	Category    string
	Subcategory string
	Description string
	Deadline    string
	Rule        string
	Active      bool
}

// User is a chat participant who receives plans and reminders.
type User struct {
	Name       string
	ID         string
	Categories []string
	Timezone   string
}

// Follows reports whether the user sees tasks of the given category. A user
// without a category filter follows everything.
func (u User) Follows(category string) bool {
	if len(u.Categories) == 0 {
		return true
	}
	for _, c := range u.Categories {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(category)) {
			return true
		}
	}
	return false
}
