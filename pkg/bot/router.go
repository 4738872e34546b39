// Package bot is the conversational front-end: it routes chat commands and
// free text to the ledger and the engines.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/cadence"
	"github.com/harrisonrobin/taskbot/pkg/ledger"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/harrisonrobin/taskbot/pkg/parse"
	"github.com/harrisonrobin/taskbot/pkg/present"
	"github.com/harrisonrobin/taskbot/pkg/recurrence"
	"github.com/harrisonrobin/taskbot/pkg/session"
	"github.com/harrisonrobin/taskbot/pkg/util"
	"go.uber.org/zap"
)

// Update is one incoming chat message.
type Update struct {
	ChatID string
	Text   string
	Locale string
}

// Messenger sends text to a chat.
type Messenger interface {
	Send(ctx context.Context, chatID, text string) error
}

const helpText = `Commands:
/today - tasks for today
/tomorrow - tasks for tomorrow
/list DD.MM - tasks for a date
/done N - mark task N of the last list as done
/add - add a task step by step
/suppliers - supplier cadences
/cancel - leave the current dialog

Or just write a task: "tomorrow 14:00 call the plumber", "order Dairy for Centre by 12:00",
"check the fridge every Tue 10:00".`

const failureText = "⚠️ Something went wrong, please try again later."

// Options wires a Router.
type Options struct {
	Ledger     ledger.Store
	Recurrence *recurrence.Engine
	Cadence    *cadence.Engine
	Parser     *parse.Parser
	Sessions   session.Store
	Messenger  Messenger
	Location   *time.Location
	Lookahead  int
	Logger     *zap.Logger
}

// Router handles updates one at a time.
type Router struct {
	ledger    ledger.Store
	recur     *recurrence.Engine
	cadence   *cadence.Engine
	parser    *parse.Parser
	sessions  session.Store
	out       Messenger
	loc       *time.Location
	lookahead int
	logger    *zap.Logger
	now       func() time.Time
}

func NewRouter(opts Options) *Router {
	r := &Router{
		ledger:    opts.Ledger,
		recur:     opts.Recurrence,
		cadence:   opts.Cadence,
		parser:    opts.Parser,
		sessions:  opts.Sessions,
		out:       opts.Messenger,
		loc:       opts.Location,
		lookahead: opts.Lookahead,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.sessions == nil {
		r.sessions = session.NewMemoryStore(0)
	}
	if r.parser == nil {
		r.parser = parse.NewParser(nil, parse.Lexicon{}, r.logger)
	}
	if r.recur == nil {
		r.recur = recurrence.NewEngine(r.ledger, recurrence.DefaultEpoch, r.logger)
	}
	if r.cadence == nil {
		r.cadence = cadence.NewEngine(r.ledger, cadence.DefaultDeliveryDeadline, r.logger)
	}
	return r
}

func (r *Router) today() civil.Date {
	return util.Today(r.now(), r.loc)
}

func (r *Router) reply(ctx context.Context, chatID, text string) error {
	return r.out.Send(ctx, chatID, strings.TrimRight(text, "\n"))
}

// Handle processes one update. Internal failures are reported to the chat
// and returned for logging.
func (r *Router) Handle(ctx context.Context, upd Update) error {
	text := strings.TrimSpace(upd.Text)
	if text == "" {
		return nil
	}
	sess, err := r.sessions.Get(ctx, upd.ChatID)
	if err != nil {
		return r.fail(ctx, upd.ChatID, fmt.Errorf("load session: %w", err))
	}

	if strings.HasPrefix(text, "/") {
		err = r.command(ctx, sess, text)
	} else if sess.Step != session.StepIdle {
		err = r.wizard(ctx, sess, text)
	} else {
		err = r.freeText(ctx, sess, text, upd.Locale)
	}
	if err != nil {
		return r.fail(ctx, upd.ChatID, err)
	}
	if err := r.sessions.Put(ctx, sess); err != nil {
		r.logger.Warn("Could not save session", zap.String("chat", upd.ChatID), zap.Error(err))
	}
	return nil
}

func (r *Router) fail(ctx context.Context, chatID string, err error) error {
	if sendErr := r.reply(ctx, chatID, failureText); sendErr != nil {
		err = errors.Join(err, sendErr)
	}
	return err
}

func (r *Router) command(ctx context.Context, sess *session.Session, text string) error {
	fields := strings.Fields(text)
	name, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	args := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
	chatID := sess.ChatID

	switch name {
	case "/start", "/help":
		return r.reply(ctx, chatID, helpText)
	case "/today":
		return r.list(ctx, sess, r.today())
	case "/tomorrow":
		return r.list(ctx, sess, r.today().AddDays(1))
	case "/list":
		if args == "" {
			return r.list(ctx, sess, r.today())
		}
		d, _, ok := util.FindDate(args, r.today())
		if !ok {
			return r.reply(ctx, chatID, "Use the format: /list 05.03")
		}
		return r.list(ctx, sess, d)
	case "/done":
		return r.done(ctx, sess, args)
	case "/add":
		sess.Reset()
		sess.Step = session.StepCategory
		return r.reply(ctx, chatID, r.askCategory())
	case "/cancel":
		sess.Reset()
		return r.reply(ctx, chatID, "Cancelled.")
	case "/suppliers":
		return r.suppliers(ctx, chatID)
	}
	return r.reply(ctx, chatID, "Unknown command. See /help")
}

func (r *Router) list(ctx context.Context, sess *session.Session, date civil.Date) error {
	user, err := ledger.FindUser(ctx, r.ledger, sess.ChatID)
	if err != nil {
		return err
	}
	instances, err := ledger.Visible(ctx, r.ledger, user, date, date)
	if err != nil {
		return err
	}
	text, order := present.Plan(date, instances)
	sess.Listing = sess.Listing[:0]
	for _, inst := range order {
		sess.Listing = append(sess.Listing, inst.Key)
	}
	return r.reply(ctx, sess.ChatID, text)
}

func (r *Router) done(ctx context.Context, sess *session.Session, args string) error {
	chatID := sess.ChatID
	n, err := strconv.Atoi(args)
	if err != nil {
		return r.reply(ctx, chatID, "Use the format: /done 1")
	}
	key, ok := sess.ListingKey(n)
	if !ok {
		return r.reply(ctx, chatID, "❌ Invalid task number. Show a list first with /today")
	}
	inst, found, err := r.ledger.GetInstance(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return r.reply(ctx, chatID, "❌ That task no longer exists.")
	}
	if inst.Done() {
		return r.reply(ctx, chatID, fmt.Sprintf("Task '%s' is already done.", inst.Description))
	}
	if _, err := r.ledger.UpdateInstanceStatus(ctx, key, model.StatusDone); err != nil {
		return err
	}
	msg := fmt.Sprintf("✅ Task '%s' done!", inst.Description)

	if cadence.IsOrder(inst) {
		next, err := r.advance(ctx, chatID, inst)
		if err != nil {
			r.logger.Error("Cadence advance failed", zap.String("key", key), zap.Error(err))
			msg += "\n⚠️ Could not schedule the next delivery."
		} else if next != "" {
			msg += "\n" + next
		}
	}
	return r.reply(ctx, chatID, msg)
}

// advance runs the supplier cycle for a completed order and describes what
// was scheduled. An order that names no known supplier schedules nothing.
func (r *Router) advance(ctx context.Context, chatID string, order model.Instance) (string, error) {
	profiles, err := r.ledger.QuerySupplierProfiles(ctx, true)
	if err != nil {
		return "", err
	}
	p := cadence.Resolve(profiles, order.Description, cadence.DefaultNormalize)
	if p == nil {
		r.logger.Info("Completed order matches no supplier", zap.String("description", order.Description))
		return "", nil
	}
	owner := order.Owner
	if owner == "" {
		owner = chatID
	}
	res, err := r.cadence.Advance(ctx, owner, p, r.today(), cadence.PointsFor(*p, order))
	if err != nil {
		return "", err
	}
	if len(res.Unconfirmed) > 0 {
		r.logger.Warn("Cadence instances unconfirmed", zap.String("supplier", p.Name), zap.Int("count", len(res.Unconfirmed)))
	}
	return fmt.Sprintf("📦 %s: delivery %s, next order %s",
		p.Name, util.FormatDate(res.DeliveryDate), util.FormatDate(res.ReorderDate)), nil
}

func (r *Router) suppliers(ctx context.Context, chatID string) error {
	profiles, err := r.ledger.QuerySupplierProfiles(ctx, true)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		return r.reply(ctx, chatID, "No active suppliers.")
	}
	var b strings.Builder
	b.WriteString("📦 Suppliers:\n")
	for _, p := range profiles {
		switch p.Kind {
		case model.CadenceInterval:
			fmt.Fprintf(&b, "• %s: every %d days, lead %d", p.Name, p.IntervalDays, p.LeadDays)
		case model.CadenceShelfLife:
			fmt.Fprintf(&b, "• %s: shelf life %d days, lead %d", p.Name, p.ShelfLifeDays, p.LeadDays)
		}
		if p.OrderDeadline != "" {
			fmt.Fprintf(&b, ", order by %s", p.OrderDeadline)
		}
		if len(p.DeliveryPoints) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(p.DeliveryPoints, ", "))
		}
		b.WriteString("\n")
	}
	return r.reply(ctx, chatID, b.String())
}

func (r *Router) freeText(ctx context.Context, sess *session.Session, text, locale string) error {
	draft := r.parser.Parse(ctx, text, locale, r.today())
	return r.create(ctx, sess.ChatID, draft)
}

// create stores a draft: a template when it carries a rule, otherwise one
// dated instance.
func (r *Router) create(ctx context.Context, chatID string, draft model.Draft) error {
	if strings.TrimSpace(draft.Description) == "" {
		return r.reply(ctx, chatID, "🤔 I could not understand the task. See /help")
	}
	today := r.today()

	if draft.Rule != "" {
		rule, err := recurrence.ParseRule(draft.Rule)
		if err != nil {
			return r.reply(ctx, chatID, "❌ "+err.Error())
		}
		tpl := draft.Template(chatID)
		tpl.Rule = rule.String()
		if err := r.ledger.AppendTemplate(ctx, tpl); err != nil {
			return err
		}
		res, err := r.recur.ExpandRange(ctx, []model.Template{tpl}, today, today.AddDays(r.lookahead))
		if err != nil {
			return err
		}
		return r.reply(ctx, chatID, fmt.Sprintf("🔁 Saved recurring task '%s' (%s), %d scheduled.",
			tpl.Description, tpl.Rule, len(res.Created)+res.Existing))
	}

	inst := draft.Instance(chatID, today)
	out, err := ledger.Materialize(ctx, r.ledger, []model.Instance{inst})
	if err != nil {
		return err
	}
	if out.Existing > 0 {
		return r.reply(ctx, chatID, "This task already exists.")
	}
	if len(out.Unconfirmed) > 0 {
		return r.reply(ctx, chatID, "⚠️ The task could not be confirmed, check the list with /today.")
	}
	return r.reply(ctx, chatID, present.Created([]model.Instance{inst}))
}
