package model

import (
	"errors"
	"fmt"
)

// CadenceKind selects how a supplier's next order date is computed.
type CadenceKind string

const (
	CadenceInterval  CadenceKind = "interval"
	CadenceShelfLife CadenceKind = "shelf_life"
)

// SupplierProfile defines a replenishment cadence.
type SupplierProfile struct {
	Name           string
	Category       string
	DeliveryPoints []string
	Kind           CadenceKind
	OrderDeadline  string
	LeadDays       int
	ShelfLifeDays  int // shelf_life only
	IntervalDays   int // interval only
	Active         bool
}

var errNoName = errors.New("supplier name is empty")

// Validate checks that exactly one cadence kind is configured.
func (p SupplierProfile) Validate() error {
	if p.Name == "" {
		return errNoName
	}
	if p.LeadDays < 0 {
		return fmt.Errorf("supplier %s: negative lead time %d", p.Name, p.LeadDays)
	}
	switch p.Kind {
	case CadenceInterval:
		if p.IntervalDays <= 0 {
			return fmt.Errorf("supplier %s: interval cadence needs interval days > 0", p.Name)
		}
		if p.ShelfLifeDays != 0 {
			return fmt.Errorf("supplier %s: interval cadence must not set shelf life", p.Name)
		}
	case CadenceShelfLife:
		if p.ShelfLifeDays <= 0 {
			return fmt.Errorf("supplier %s: shelf-life cadence needs shelf life days > 0", p.Name)
		}
		if p.IntervalDays != 0 {
			return fmt.Errorf("supplier %s: shelf-life cadence must not set interval", p.Name)
		}
	default:
		return fmt.Errorf("supplier %s: unknown cadence kind %q", p.Name, p.Kind)
	}
	return nil
}
