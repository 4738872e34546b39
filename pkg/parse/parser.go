package parse

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/harrisonrobin/taskbot/pkg/recurrence"
	"github.com/harrisonrobin/taskbot/pkg/util"
	"go.uber.org/zap"
)

// Oracle is an optional free-text parser, typically backed by an LLM. A nil
// draft means it could not make sense of the text.
type Oracle interface {
	ParseDraft(ctx context.Context, text, locale string, today civil.Date) (*model.Draft, error)
}

// Parser reads drafts with the heuristic grammar and lets the oracle fill in
// fields the grammar left empty.
type Parser struct {
	oracle  Oracle
	lexicon Lexicon
	timeout time.Duration
	logger  *zap.Logger
	warn    sync.Once
}

// NewParser returns a parser. oracle may be nil.
func NewParser(oracle Oracle, lex Lexicon, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{oracle: oracle, lexicon: lex, timeout: 15 * time.Second, logger: logger}
}

// Lexicon returns the names the parser recognizes.
func (p *Parser) Lexicon() Lexicon { return p.lexicon }

// Parse never fails: without an oracle, or when the oracle errors, the
// heuristic draft is returned as is.
func (p *Parser) Parse(ctx context.Context, text, locale string, today civil.Date) model.Draft {
	draft := Heuristic(text, today, p.lexicon)
	if p.oracle == nil {
		return draft
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	enriched, err := p.oracle.ParseDraft(ctx, text, locale, today)
	if err != nil {
		p.unavailable(err)
		return draft
	}
	if enriched == nil {
		return draft
	}
	return merge(draft, sanitize(*enriched))
}

func (p *Parser) unavailable(err error) {
	logged := false
	p.warn.Do(func() {
		p.logger.Warn("Free-text oracle unavailable, using heuristic parsing", zap.Error(err))
		logged = true
	})
	if !logged {
		p.logger.Debug("Free-text oracle failed", zap.Error(err))
	}
}

// sanitize drops oracle fields that do not hold up to the closed grammar.
func sanitize(d model.Draft) model.Draft {
	if d.HasDate && !d.Date.IsValid() {
		d.HasDate = false
		d.Date = civil.Date{}
	}
	if clock, err := util.ParseClock(d.Deadline); err != nil {
		d.Deadline = ""
	} else {
		d.Deadline = clock
	}
	if d.Rule != "" {
		rule, err := recurrence.ParseRule(d.Rule)
		if err != nil {
			d.Rule = ""
		} else {
			d.Rule = rule.String()
		}
	}
	return d
}

// merge keeps every field the heuristic found and takes the rest from extra.
// The description is the exception: the heuristic one is leftover text, so
// a description from extra replaces it.
func merge(base, extra model.Draft) model.Draft {
	if !base.HasDate && extra.HasDate {
		base.Date, base.HasDate = extra.Date, true
	}
	if base.Deadline == "" {
		base.Deadline = extra.Deadline
	}
	if base.Category == "" {
		base.Category = extra.Category
	}
	if base.Subcategory == "" {
		base.Subcategory = extra.Subcategory
	}
	if base.Rule == "" {
		base.Rule = extra.Rule
	}
	if base.Supplier == "" {
		base.Supplier = extra.Supplier
	}
	if extra.Description != "" {
		base.Description = extra.Description
	}
	return base
}
