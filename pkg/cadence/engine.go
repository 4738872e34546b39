// Package cadence chains supplier orders: completing an order schedules the
// delivery acceptance and the next order.
package cadence

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/ledger"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"go.uber.org/zap"
)

// DefaultDeliveryDeadline is the acceptance deadline used when none is configured.
const DefaultDeliveryDeadline = "10:00"

// Result is what one Advance produced.
type Result struct {
	DeliveryDate civil.Date
	ReorderDate  civil.Date
	Created      []model.Instance
	Existing     int
	Unconfirmed  []model.Instance
}

// Engine advances supplier cycles against the ledger.
type Engine struct {
	ledger           ledger.Ledger
	deliveryDeadline string
	logger           *zap.Logger
}

// NewEngine returns an engine writing through to l.
func NewEngine(l ledger.Ledger, deliveryDeadline string, logger *zap.Logger) *Engine {
	if deliveryDeadline == "" {
		deliveryDeadline = DefaultDeliveryDeadline
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{ledger: l, deliveryDeadline: deliveryDeadline, logger: logger}
}

// Schedule returns the delivery and next-order dates for an order completed
// on completed. Shelf-life reorders land one day before stock runs out and
// never on the delivery day itself.
func Schedule(p model.SupplierProfile, completed civil.Date) (delivery, reorder civil.Date) {
	delivery = completed.AddDays(p.LeadDays)
	switch p.Kind {
	case model.CadenceShelfLife:
		reorder = delivery.AddDays(max(1, p.ShelfLifeDays-1))
	default:
		reorder = completed.AddDays(p.IntervalDays)
	}
	return delivery, reorder
}

// Plan builds the delivery and reorder instances for each point, without
// touching the ledger. No points means one pair without a sub-category.
func (e *Engine) Plan(owner string, p model.SupplierProfile, completed civil.Date, points []string) []model.Instance {
	delivery, reorder := Schedule(p, completed)
	if len(points) == 0 {
		points = []string{""}
	}
	out := make([]model.Instance, 0, 2*len(points))
	for _, point := range points {
		out = append(out,
			model.Instance{
				Owner:       owner,
				Date:        delivery,
				Category:    p.Category,
				Subcategory: point,
				Description: DeliveryDescription(p.Name),
				Deadline:    e.deliveryDeadline,
				Origin:      model.OriginCadence,
				Kind:        model.KindDelivery,
			}.WithKey(),
			model.Instance{
				Owner:       owner,
				Date:        reorder,
				Category:    p.Category,
				Subcategory: point,
				Description: OrderDescription(p.Name),
				Deadline:    p.OrderDeadline,
				Origin:      model.OriginCadence,
				Kind:        model.KindOrder,
			}.WithKey(),
		)
	}
	return out
}

// Advance materializes the next delivery and order for a profile whose order
// was completed on completed. An inactive or invalid profile yields an empty
// result. Advancing the same completion twice creates nothing new.
func (e *Engine) Advance(ctx context.Context, owner string, p *model.SupplierProfile, completed civil.Date, points []string) (Result, error) {
	if p == nil || !p.Active {
		return Result{}, nil
	}
	if err := p.Validate(); err != nil {
		e.logger.Warn("Ignoring invalid supplier profile", zap.Error(err))
		return Result{}, nil
	}

	res := Result{}
	res.DeliveryDate, res.ReorderDate = Schedule(*p, completed)
	out, err := ledger.Materialize(ctx, e.ledger, e.Plan(owner, *p, completed, points))
	res.Created = out.Created
	res.Existing = out.Existing
	res.Unconfirmed = out.Unconfirmed
	if err != nil {
		return res, fmt.Errorf("advance supplier %s: %w", p.Name, err)
	}
	e.logger.Info("Advanced supplier cycle",
		zap.String("supplier", p.Name),
		zap.String("owner", owner),
		zap.String("completed", completed.String()),
		zap.String("delivery", res.DeliveryDate.String()),
		zap.String("reorder", res.ReorderDate.String()),
		zap.Int("created", len(res.Created)))
	return res, nil
}

// OrderDescription is the task text of a generated order.
func OrderDescription(supplier string) string {
	return "Order: " + supplier
}

// DeliveryDescription is the task text of a generated delivery acceptance.
func DeliveryDescription(supplier string) string {
	return "Accept delivery: " + supplier
}
