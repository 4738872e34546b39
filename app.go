package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/auth"
	"github.com/harrisonrobin/taskbot/pkg/bot"
	"github.com/harrisonrobin/taskbot/pkg/cadence"
	"github.com/harrisonrobin/taskbot/pkg/colors"
	"github.com/harrisonrobin/taskbot/pkg/config"
	"github.com/harrisonrobin/taskbot/pkg/google"
	"github.com/harrisonrobin/taskbot/pkg/index"
	"github.com/harrisonrobin/taskbot/pkg/ledger"
	"github.com/harrisonrobin/taskbot/pkg/overdue"
	"github.com/harrisonrobin/taskbot/pkg/parse"
	"github.com/harrisonrobin/taskbot/pkg/recurrence"
	"github.com/harrisonrobin/taskbot/pkg/scheduler"
	"github.com/harrisonrobin/taskbot/pkg/server"
	"github.com/harrisonrobin/taskbot/pkg/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// State files kept next to the config file.
const (
	sqliteFile    = "taskbot.db"
	rowIndexFile  = "rows.json"
	eventIdxFile  = "events.json"
	colorsFile    = "colors.json"
	remindersFile = "reminders.json"
)

// app holds the opened backends shared by the commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	dir    string
	loc    *time.Location
	epoch  civil.Date

	store  ledger.Store
	sheets *google.SheetsLedger
	rdb    *redis.Client
	timers *overdue.Table
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	epoch, err := cfg.EpochDate()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, dir: filepath.Dir(configPath), loc: loc, epoch: epoch}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) state(name string) string {
	return filepath.Join(a.dir, name)
}

func (a *app) clientOption(ctx context.Context) (option.ClientOption, error) {
	authn := &auth.Authenticator{
		ConfigDir:       a.dir,
		CredentialsFile: a.cfg.CredentialsFile,
		Logger:          a.logger.Named("auth"),
	}
	return authn.ClientOption(ctx)
}

func (a *app) openStore(ctx context.Context) error {
	var opt option.ClientOption
	googleOpt := func() (option.ClientOption, error) {
		if opt != nil {
			return opt, nil
		}
		var err error
		opt, err = a.clientOption(ctx)
		return opt, err
	}

	switch a.cfg.Ledger {
	case config.LedgerMemory:
		a.logger.Warn("Using the in-memory ledger, tasks are lost on exit")
		a.store = ledger.NewMemory()
	case config.LedgerSQLite:
		path := a.cfg.SQLitePath
		if path == "" {
			path = a.state(sqliteFile)
		}
		db, err := ledger.OpenSQLite(ctx, path)
		if err != nil {
			return fmt.Errorf("open sqlite ledger: %w", err)
		}
		a.store = db
	case config.LedgerSheets:
		o, err := googleOpt()
		if err != nil {
			return err
		}
		srv, err := google.NewSheetsService(ctx, o)
		if err != nil {
			return err
		}
		rows, err := index.New(a.state(rowIndexFile))
		if err != nil {
			return err
		}
		a.sheets = google.NewSheetsLedger(srv, a.cfg.SpreadsheetID, rows, a.logger.Named("sheets"))
		a.store = a.sheets
	default:
		return fmt.Errorf("unknown ledger %q", a.cfg.Ledger)
	}

	if a.cfg.Calendar == "" {
		return nil
	}
	o, err := googleOpt()
	if err != nil {
		return err
	}
	calSrv, calID, err := google.NewCalendarService(ctx, o, a.cfg.Calendar)
	if err != nil {
		return err
	}
	events, err := index.New(a.state(eventIdxFile))
	if err != nil {
		return err
	}
	cache, err := colors.NewCache(a.state(colorsFile))
	if err != nil {
		return err
	}
	cal := google.NewCalendarClient(calSrv, calID, events, cache, a.loc)
	a.store = google.NewMirror(a.store, cal, a.logger.Named("calendar"))
	a.logger.Info("Mirroring deadlines to calendar", zap.String("calendar", a.cfg.Calendar))
	return nil
}

func (a *app) recurrence() *recurrence.Engine {
	return recurrence.NewEngine(a.store, a.epoch, a.logger.Named("recurrence"))
}

func (a *app) cadence() *cadence.Engine {
	return cadence.NewEngine(a.store, a.cfg.DeliveryDeadline, a.logger.Named("cadence"))
}

func (a *app) parser(ctx context.Context) (*parse.Parser, error) {
	logger := a.logger.Named("parse")
	if a.cfg.GeminiKey == "" {
		logger.Info("No Gemini API key, using the built-in parser only")
		return parse.NewParser(nil, a.cfg.Lexicon, logger), nil
	}
	oracle, err := parse.NewGeminiOracle(ctx, a.cfg.GeminiKey, a.cfg.GeminiModel, a.cfg.Lexicon)
	if err != nil {
		return nil, err
	}
	return parse.NewParser(oracle, a.cfg.Lexicon, logger), nil
}

func (a *app) sessions() (session.Store, error) {
	if a.cfg.RedisURL == "" {
		return session.NewMemoryStore(session.DefaultTTL), nil
	}
	rdb, err := session.OpenRedis(a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	return session.NewRedisStore(rdb, session.DefaultTTL), nil
}

func (a *app) router(ctx context.Context, out bot.Messenger) (*bot.Router, error) {
	p, err := a.parser(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := a.sessions()
	if err != nil {
		return nil, err
	}
	return bot.NewRouter(bot.Options{
		Ledger:     a.store,
		Recurrence: a.recurrence(),
		Cadence:    a.cadence(),
		Parser:     p,
		Sessions:   sessions,
		Messenger:  out,
		Location:   a.loc,
		Lookahead:  a.cfg.LookaheadDays,
		Logger:     a.logger.Named("bot"),
	}), nil
}

func (a *app) jobs(out bot.Messenger) (*scheduler.Jobs, error) {
	timers, err := overdue.NewTable(a.state(remindersFile))
	if err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	a.timers = timers
	return scheduler.NewJobs(scheduler.Options{
		Ledger:       a.store,
		Recurrence:   a.recurrence(),
		Messenger:    out,
		Reminders:    timers,
		Location:     a.loc,
		Lookahead:    a.cfg.LookaheadDays,
		ReminderLead: a.cfg.ReminderLead(),
		Logger:       a.logger.Named("jobs"),
	}), nil
}

// checks are the readiness probes of the opened backends.
func (a *app) checks() map[string]server.Check {
	checks := map[string]server.Check{}
	if p, ok := a.store.(ledger.Pinger); ok {
		checks["ledger"] = p.Ping
	}
	if a.rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() }
	}
	return checks
}

// Close saves state files and releases backends.
func (a *app) Close() {
	var errs []error
	if a.timers != nil {
		errs = append(errs, a.timers.Save())
	}
	if c, ok := a.store.(ledger.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("Error closing", zap.Error(err))
	}
}
