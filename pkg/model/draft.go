package model

import "cloud.google.com/go/civil"

// Draft is a best-effort structured reading of free text. Zero fields mean
// "not recognized".
type Draft struct {
	Date        civil.Date
	HasDate     bool
	Deadline    string
	Category    string
	Subcategory string
	Description string
	Rule        string
	Supplier    string
}

// Instance turns the draft into a manual instance for owner, defaulting the
// date to fallback when the draft carries none.
func (d Draft) Instance(owner string, fallback civil.Date) Instance {
	date := fallback
	if d.HasDate {
		date = d.Date
	}
	kind := KindTask
	if d.Supplier != "" {
		kind = KindOrder
	}
	return Instance{
		Owner:       owner,
		Date:        date,
		Category:    d.Category,
		Subcategory: d.Subcategory,
		Description: d.Description,
		Deadline:    d.Deadline,
		Origin:      OriginManual,
		Kind:        kind,
	}.WithKey()
}

// Template turns a draft carrying a rule into a template for owner.
func (d Draft) Template(owner string) Template {
	return Template{
		Owner:       owner,
		Category:    d.Category,
		Subcategory: d.Subcategory,
		Description: d.Description,
		Deadline:    d.Deadline,
		Rule:        d.Rule,
		Active:      true,
	}
}
