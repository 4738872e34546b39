package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/harrisonrobin/taskbot/pkg/ledger"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/harrisonrobin/taskbot/pkg/recurrence"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML file loaded by "taskbot seed".
type Seed struct {
	Templates []SeedTemplate `yaml:"templates"`
	Suppliers []SeedSupplier `yaml:"suppliers"`
	Users     []SeedUser     `yaml:"users"`
}

type SeedTemplate struct {
	Owner       string `yaml:"owner"`
	Category    string `yaml:"category"`
	Subcategory string `yaml:"subcategory"`
	Description string `yaml:"description"`
	Deadline    string `yaml:"deadline"`
	Rule        string `yaml:"rule"`
	Active      *bool  `yaml:"active"`
}

type SeedSupplier struct {
	Name          string   `yaml:"name"`
	Category      string   `yaml:"category"`
	Points        []string `yaml:"points"`
	Cadence       string   `yaml:"cadence"`
	OrderDeadline string   `yaml:"order_deadline"`
	LeadDays      int      `yaml:"lead_days"`
	ShelfLifeDays int      `yaml:"shelf_life_days"`
	IntervalDays  int      `yaml:"interval_days"`
	Active        *bool    `yaml:"active"`
}

type SeedUser struct {
	Name       string   `yaml:"name"`
	ID         string   `yaml:"id"`
	Categories []string `yaml:"categories"`
	Timezone   string   `yaml:"timezone"`
}

func active(b *bool) bool { return b == nil || *b }

func (s SeedTemplate) Model() model.Template {
	return model.Template{
		Owner:       s.Owner,
		Category:    s.Category,
		Subcategory: s.Subcategory,
		Description: s.Description,
		Deadline:    s.Deadline,
		Rule:        s.Rule,
		Active:      active(s.Active),
	}
}

func (s SeedSupplier) Model() model.SupplierProfile {
	return model.SupplierProfile{
		Name:           s.Name,
		Category:       s.Category,
		DeliveryPoints: s.Points,
		Kind:           model.CadenceKind(s.Cadence),
		OrderDeadline:  s.OrderDeadline,
		LeadDays:       s.LeadDays,
		ShelfLifeDays:  s.ShelfLifeDays,
		IntervalDays:   s.IntervalDays,
		Active:         active(s.Active),
	}
}

func (s SeedUser) Model() model.User {
	return model.User{Name: s.Name, ID: s.ID, Categories: s.Categories, Timezone: s.Timezone}
}

// ReadSeed decodes a seed file, rejecting unknown fields.
func ReadSeed(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to decode seed %s: %w", path, err)
	}
	return &seed, nil
}

// Validate checks every rule and supplier before anything is written.
func (s *Seed) Validate() error {
	var errs []error
	for _, t := range s.Templates {
		if _, err := recurrence.ParseRule(t.Rule); err != nil {
			errs = append(errs, fmt.Errorf("template %q: %w", t.Description, err))
		}
	}
	for _, p := range s.Suppliers {
		if err := p.Model().Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, u := range s.Users {
		if u.ID == "" {
			errs = append(errs, fmt.Errorf("user %q has no id", u.Name))
		}
	}
	return errors.Join(errs...)
}

// Apply validates the seed and appends its records to the ledger.
func (s *Seed) Apply(ctx context.Context, admin ledger.Admin) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, t := range s.Templates {
		if err := admin.AppendTemplate(ctx, t.Model()); err != nil {
			return fmt.Errorf("append template %q: %w", t.Description, err)
		}
	}
	for _, p := range s.Suppliers {
		if err := admin.AppendSupplierProfile(ctx, p.Model()); err != nil {
			return fmt.Errorf("append supplier %q: %w", p.Name, err)
		}
	}
	for _, u := range s.Users {
		if err := admin.AppendUser(ctx, u.Model()); err != nil {
			return fmt.Errorf("append user %q: %w", u.Name, err)
		}
	}
	return nil
}
