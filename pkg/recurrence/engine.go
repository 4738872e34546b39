// Package recurrence materializes task templates into dated instances.
package recurrence

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/ledger"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"go.uber.org/zap"
)

// DefaultEpoch anchors interval rules when no epoch is configured.
var DefaultEpoch = civil.Date{Year: 2025, Month: time.January, Day: 1}

// Result is what one expansion produced.
type Result struct {
	Created []model.Instance
	// Existing counts due instances that were already in the ledger.
	Existing int
	// Skipped counts templates whose rule could not be parsed.
	Skipped  int
	Warnings []*RuleError
	// Unconfirmed instances hit a write conflict twice and should be re-checked.
	Unconfirmed []model.Instance
}

// Engine expands templates against the ledger.
type Engine struct {
	ledger ledger.Ledger
	epoch  civil.Date
	logger *zap.Logger
}

// NewEngine returns an engine writing through to l. A zero epoch selects
// DefaultEpoch.
func NewEngine(l ledger.Ledger, epoch civil.Date, logger *zap.Logger) *Engine {
	if epoch.IsZero() {
		epoch = DefaultEpoch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{ledger: l, epoch: epoch, logger: logger}
}

// Epoch returns the reference date of the interval grid.
func (e *Engine) Epoch() civil.Date { return e.epoch }

// Expand materializes every active template due on date. It is safe to call
// repeatedly for the same date.
func (e *Engine) Expand(ctx context.Context, templates []model.Template, date civil.Date) (Result, error) {
	return e.ExpandRange(ctx, templates, date, date)
}

// ExpandRange expands every date in [from, to]. A malformed rule is counted
// once, however many dates are covered.
func (e *Engine) ExpandRange(ctx context.Context, templates []model.Template, from, to civil.Date) (Result, error) {
	var (
		res        Result
		candidates []model.Instance
	)
	for _, tpl := range templates {
		if !tpl.Active {
			continue
		}
		rule, err := ParseRule(tpl.Rule)
		if err != nil {
			var re *RuleError
			if errors.As(err, &re) {
				res.Warnings = append(res.Warnings, re)
			}
			res.Skipped++
			e.logger.Warn("Skipping template with invalid rule",
				zap.String("owner", tpl.Owner),
				zap.String("task", tpl.Description),
				zap.Error(err))
			continue
		}
		for d := from; !d.After(to); d = d.AddDays(1) {
			if rule.Due(d, e.epoch) {
				candidates = append(candidates, Materialize(tpl, rule, d))
			}
		}
	}
	if len(candidates) == 0 {
		return res, nil
	}

	out, err := ledger.Materialize(ctx, e.ledger, candidates)
	res.Created = out.Created
	res.Existing = out.Existing
	res.Unconfirmed = out.Unconfirmed
	if err != nil {
		return res, err
	}
	if len(res.Created) > 0 {
		e.logger.Info("Materialized recurring tasks",
			zap.Int("created", len(res.Created)),
			zap.Int("existing", res.Existing),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}
	return res, nil
}

// Materialize builds the instance a template produces on d.
func Materialize(tpl model.Template, rule Rule, d civil.Date) model.Instance {
	deadline := tpl.Deadline
	if rule.Deadline != "" {
		deadline = rule.Deadline
	}
	return model.Instance{
		Owner:       tpl.Owner,
		Date:        d,
		Category:    tpl.Category,
		Subcategory: tpl.Subcategory,
		Description: tpl.Description,
		Deadline:    deadline,
		Origin:      model.OriginRecurrence,
	}.WithKey()
}

// Validate parses every template rule and returns the failures, for callers
// that want to surface warnings without expanding.
func Validate(templates []model.Template) []*RuleError {
	var out []*RuleError
	for _, tpl := range templates {
		if _, err := ParseRule(tpl.Rule); err != nil {
			var re *RuleError
			if errors.As(err, &re) {
				out = append(out, re)
			}
		}
	}
	return out
}
