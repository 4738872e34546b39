// Package scheduler runs the daily jobs: the morning plan, deadline
// reminders and the evening report with carryover.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/bot"
	"github.com/harrisonrobin/taskbot/pkg/ledger"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/harrisonrobin/taskbot/pkg/overdue"
	"github.com/harrisonrobin/taskbot/pkg/present"
	"github.com/harrisonrobin/taskbot/pkg/recurrence"
	"github.com/harrisonrobin/taskbot/pkg/util"
	"go.uber.org/zap"
)

// Options wires Jobs.
type Options struct {
	Ledger       ledger.Ledger
	Recurrence   *recurrence.Engine
	Messenger    bot.Messenger
	Reminders    *overdue.Table
	Location     *time.Location
	Lookahead    int
	ReminderLead time.Duration
	Logger       *zap.Logger
}

// Jobs holds the job bodies. Each is safe to run at any time and
// idempotent apart from the messages it sends.
type Jobs struct {
	ledger    ledger.Ledger
	recur     *recurrence.Engine
	out       bot.Messenger
	reminders *overdue.Table
	loc       *time.Location
	lookahead int
	lead      time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewJobs(opts Options) *Jobs {
	j := &Jobs{
		ledger:    opts.Ledger,
		recur:     opts.Recurrence,
		out:       opts.Messenger,
		reminders: opts.Reminders,
		loc:       opts.Location,
		lookahead: opts.Lookahead,
		lead:      opts.ReminderLead,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if j.loc == nil {
		j.loc = time.UTC
	}
	if j.logger == nil {
		j.logger = zap.NewNop()
	}
	if j.recur == nil {
		j.recur = recurrence.NewEngine(j.ledger, recurrence.DefaultEpoch, j.logger)
	}
	if j.reminders == nil {
		j.reminders, _ = overdue.NewTable("")
	}
	if j.lead == 0 {
		j.lead = 30 * time.Minute
	}
	return j
}

func (j *Jobs) today() civil.Date {
	return util.Today(j.now(), j.loc)
}

// Morning expands every template for today and the look-ahead window, then
// sends each user the plan of the day.
func (j *Jobs) Morning(ctx context.Context) error {
	today := j.today()
	templates, err := j.ledger.QueryTemplates(ctx, "")
	if err != nil {
		return fmt.Errorf("query templates: %w", err)
	}
	res, err := j.recur.ExpandRange(ctx, templates, today, today.AddDays(j.lookahead))
	if err != nil {
		return fmt.Errorf("expand templates: %w", err)
	}
	j.logger.Info("Expanded templates",
		zap.Int("created", len(res.Created)),
		zap.Int("existing", res.Existing),
		zap.Int("skipped", res.Skipped),
		zap.Int("unconfirmed", len(res.Unconfirmed)))

	return j.eachUser(ctx, func(u model.User) error {
		instances, err := ledger.Visible(ctx, j.ledger, u, today, today)
		if err != nil {
			return err
		}
		text, _ := present.Plan(today, instances)
		return j.out.Send(ctx, u.ID, text)
	})
}

// Evening sends the day's report and carries every pending task over to
// tomorrow.
func (j *Jobs) Evening(ctx context.Context) error {
	today := j.today()
	sendErr := j.eachUser(ctx, func(u model.User) error {
		instances, err := ledger.Visible(ctx, j.ledger, u, today, today)
		if err != nil {
			return err
		}
		if len(instances) == 0 {
			return nil
		}
		return j.out.Send(ctx, u.ID, present.Report(today, instances))
	})

	instances, err := j.ledger.QueryInstances(ctx, "", today, today)
	if err != nil {
		return errors.Join(sendErr, fmt.Errorf("query instances: %w", err))
	}
	out, err := ledger.Materialize(ctx, j.ledger, Carryover(instances, today.AddDays(1)))
	if err != nil {
		return errors.Join(sendErr, fmt.Errorf("carry over: %w", err))
	}
	j.logger.Info("Carried over pending tasks",
		zap.Int("created", len(out.Created)),
		zap.Int("existing", out.Existing),
		zap.Int("unconfirmed", len(out.Unconfirmed)))
	return sendErr
}

// Carryover copies the pending instances to date.
func Carryover(instances []model.Instance, date civil.Date) []model.Instance {
	var out []model.Instance
	for _, inst := range instances {
		if inst.Done() {
			continue
		}
		c := inst
		c.Date = date
		c.Status = model.StatusPending
		c.Origin = model.OriginCarryover
		out = append(out, c.WithKey())
	}
	return out
}

// Reminders refreshes the reminder table from today's tasks and sends the
// reminders now due.
func (j *Jobs) Reminders(ctx context.Context) error {
	now := j.now().In(j.loc)
	today := util.Today(now, j.loc)
	instances, err := j.ledger.QueryInstances(ctx, "", today, today)
	if err != nil {
		return fmt.Errorf("query instances: %w", err)
	}
	users, err := j.ledger.QueryUsers(ctx)
	if err != nil {
		return fmt.Errorf("query users: %w", err)
	}

	for _, inst := range instances {
		if inst.Deadline == "" {
			continue
		}
		for _, to := range recipients(inst, users) {
			key := inst.Key + ":" + to
			if inst.Done() {
				j.reminders.Remove(key)
				continue
			}
			due, err := util.At(inst.Date, inst.Deadline, j.loc)
			if err != nil {
				j.logger.Warn("Bad deadline", zap.String("key", inst.Key), zap.Error(err))
				continue
			}
			j.reminders.Update(key, to, present.Reminder(inst), due)
		}
	}

	due := j.reminders.Sweep(now, j.lead)
	sort.Slice(due, func(a, b int) bool { return due[a].Due.Before(due[b].Due) })
	var errs []error
	for _, e := range due {
		if err := j.out.Send(ctx, e.Owner, e.Summary); err != nil {
			errs = append(errs, err)
		}
	}
	if err := j.reminders.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save reminders: %w", err))
	}
	if len(due) > 0 {
		j.logger.Info("Sent reminders", zap.Int("count", len(due)))
	}
	return errors.Join(errs...)
}

// recipients are the owner of an instance, or every user following its
// category when it has none.
func recipients(inst model.Instance, users []model.User) []string {
	if inst.Owner != "" {
		return []string{inst.Owner}
	}
	var out []string
	for _, u := range users {
		if u.Follows(inst.Category) {
			out = append(out, u.ID)
		}
	}
	return out
}

func (j *Jobs) eachUser(ctx context.Context, fn func(model.User) error) error {
	users, err := j.ledger.QueryUsers(ctx)
	if err != nil {
		return fmt.Errorf("query users: %w", err)
	}
	var errs []error
	for _, u := range users {
		if err := fn(u); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u.ID, err))
		}
	}
	return errors.Join(errs...)
}
