package bot

import (
	"context"
	"strings"

	"github.com/harrisonrobin/taskbot/pkg/parse"
	"github.com/harrisonrobin/taskbot/pkg/session"
	"github.com/harrisonrobin/taskbot/pkg/util"
)

const skip = "-"

func (r *Router) askCategory() string {
	msg := "Category? (\"-\" for none)"
	if cats := r.parser.Lexicon().Categories; len(cats) > 0 {
		msg += "\nKnown: " + strings.Join(cats, ", ")
	}
	return msg
}

func (r *Router) askSubcategory() string {
	msg := "Subcategory or delivery point? (\"-\" for none)"
	if points := r.parser.Lexicon().Points; len(points) > 0 {
		msg += "\nKnown: " + strings.Join(points, ", ")
	}
	return msg
}

func optional(text string) string {
	if text == skip {
		return ""
	}
	return text
}

// wizard advances the /add dialog by one answer.
func (r *Router) wizard(ctx context.Context, sess *session.Session, text string) error {
	chatID := sess.ChatID
	switch sess.Step {
	case session.StepCategory:
		sess.Draft.Category = optional(text)
		sess.Step = session.StepSubcategory
		return r.reply(ctx, chatID, r.askSubcategory())

	case session.StepSubcategory:
		sess.Draft.Subcategory = optional(text)
		sess.Step = session.StepText
		return r.reply(ctx, chatID, "What needs to be done?")

	case session.StepText:
		if optional(text) == "" {
			return r.reply(ctx, chatID, "The task text cannot be empty. What needs to be done?")
		}
		sess.Draft.Description = text
		sess.Step = session.StepDeadline
		return r.reply(ctx, chatID, "Deadline? (HH:MM or \"-\")")

	case session.StepDeadline:
		if text != skip {
			clock, err := util.ParseClock(text)
			if err != nil {
				return r.reply(ctx, chatID, "Please send the time as HH:MM, or \"-\".")
			}
			sess.Draft.Deadline = clock
		}
		sess.Step = session.StepWhen
		return r.reply(ctx, chatID, "When? (today, tomorrow, DD.MM, or a rule like \"every 2 days\", \"on Mon,Thu\")")

	case session.StepWhen:
		when := parse.Heuristic(text, r.today(), parse.Lexicon{})
		switch {
		case when.Rule != "":
			sess.Draft.Rule = when.Rule
		case when.HasDate:
			sess.Draft.Date, sess.Draft.HasDate = when.Date, true
		case text == skip:
		default:
			return r.reply(ctx, chatID, "I did not recognize a date or rule. Try \"tomorrow\", \"05.03\" or \"every Tue\".")
		}
		if sess.Draft.Deadline == "" && when.Deadline != "" {
			sess.Draft.Deadline = when.Deadline
		}
		draft := sess.Draft
		sess.Reset()
		return r.create(ctx, chatID, draft)
	}
	sess.Reset()
	return nil
}
