package session

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/model"
)

// draftJSON stores the draft date as text, empty when unset. A zero
// civil.Date marshals to "0000-00-00", which civil cannot parse back.
type draftJSON struct {
	Date        string `json:"date,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	Description string `json:"description,omitempty"`
	Rule        string `json:"rule,omitempty"`
	Supplier    string `json:"supplier,omitempty"`
}

type sessionJSON struct {
	ChatID    string    `json:"chat_id"`
	Step      Step      `json:"step,omitempty"`
	Draft     draftJSON `json:"draft"`
	Listing   []string  `json:"listing,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s Session) MarshalJSON() ([]byte, error) {
	d := draftJSON{
		Deadline:    s.Draft.Deadline,
		Category:    s.Draft.Category,
		Subcategory: s.Draft.Subcategory,
		Description: s.Draft.Description,
		Rule:        s.Draft.Rule,
		Supplier:    s.Draft.Supplier,
	}
	if s.Draft.HasDate {
		d.Date = s.Draft.Date.String()
	}
	return json.Marshal(sessionJSON{
		ChatID:    s.ChatID,
		Step:      s.Step,
		Draft:     d,
		Listing:   s.Listing,
		UpdatedAt: s.UpdatedAt,
	})
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var w sessionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	draft := model.Draft{
		Deadline:    w.Draft.Deadline,
		Category:    w.Draft.Category,
		Subcategory: w.Draft.Subcategory,
		Description: w.Draft.Description,
		Rule:        w.Draft.Rule,
		Supplier:    w.Draft.Supplier,
	}
	if w.Draft.Date != "" {
		date, err := civil.ParseDate(w.Draft.Date)
		if err != nil {
			return fmt.Errorf("draft date: %w", err)
		}
		draft.Date, draft.HasDate = date, true
	}
	*s = Session{
		ChatID:    w.ChatID,
		Step:      w.Step,
		Draft:     draft,
		Listing:   w.Listing,
		UpdatedAt: w.UpdatedAt,
	}
	return nil
}
