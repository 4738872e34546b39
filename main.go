package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/auth"
	"github.com/harrisonrobin/taskbot/pkg/bot"
	"github.com/harrisonrobin/taskbot/pkg/cadence"
	"github.com/harrisonrobin/taskbot/pkg/config"
	"github.com/harrisonrobin/taskbot/pkg/ledger"
	"github.com/harrisonrobin/taskbot/pkg/logging"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/harrisonrobin/taskbot/pkg/present"
	"github.com/harrisonrobin/taskbot/pkg/scheduler"
	"github.com/harrisonrobin/taskbot/pkg/server"
	"github.com/harrisonrobin/taskbot/pkg/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	verbose    bool
	configPath string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "taskbot",
	Short: "Chat task tracker with recurring tasks and supplier order cycles",
	Long: `taskbot keeps a team's daily tasks in a spreadsheet (or SQLite), talks to
people through Telegram, expands recurring tasks every morning and schedules
the next delivery and order whenever a supplier order is marked done.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return err
		}
		if configPath == "" {
			if configPath, err = config.GetConfigPath(); err != nil {
				return fmt.Errorf("could not find path to configuration file: %w", err)
			}
		}
		if cmd.Name() == "set" || cmd.Name() == "path" {
			return nil
		}
		cfg, err = config.LoadFrom(configPath, os.Getenv)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat bot, the scheduler and the health server",
	RunE:  runServe,
}

var (
	expandDate string
	expandDays int
)

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Materialize recurring tasks for a date range",
	RunE:  runExpand,
}

var (
	advanceDate   string
	advanceOwner  string
	advancePoints []string
)

var advanceCmd = &cobra.Command{
	Use:   "advance SUPPLIER",
	Short: "Schedule the next delivery and order of a supplier as if an order was completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdvance,
}

var (
	planDate string
	planUser string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the task plan of a day",
	RunE:  runPlan,
}

var seedCmd = &cobra.Command{
	Use:   "seed FILE.yaml",
	Short: "Load templates, suppliers and users from a YAML file into the ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

var authCheck bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize Google access, or check service account credentials with --check",
	RunE:  runAuth,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or change the configuration file",
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value, e.g. 'config set calendar Tasks'",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := config.ReadFile(configPath)
		if err != nil {
			return err
		}
		if err := file.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.Save(configPath, file); err != nil {
			return fmt.Errorf("error saving config: %w", err)
		}
		fmt.Printf("%s set in %s\n", args[0], configPath)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/taskbot/config.json)")

	expandCmd.Flags().StringVar(&expandDate, "date", "", "first date, DD.MM.YYYY (default today)")
	expandCmd.Flags().IntVar(&expandDays, "days", -1, "days after the first date to cover (default lookahead_days)")

	advanceCmd.Flags().StringVar(&advanceDate, "date", "", "completion date, DD.MM.YYYY (default today)")
	advanceCmd.Flags().StringVar(&advanceOwner, "owner", "", "chat id owning the new tasks")
	advanceCmd.Flags().StringSliceVar(&advancePoints, "point", nil, "delivery point (repeatable; default the supplier's points)")

	planCmd.Flags().StringVar(&planDate, "date", "", "date, DD.MM.YYYY (default today)")
	planCmd.Flags().StringVar(&planUser, "user", "", "show the plan as this chat id sees it")

	authCmd.Flags().BoolVar(&authCheck, "check", false, "print the service account identity and exit")

	configCmd.AddCommand(configSetCmd, configPathCmd)
	rootCmd.AddCommand(serveCmd, expandCmd, advanceCmd, planCmd, seedCmd, authCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.TelegramToken == "" {
		return fmt.Errorf("no Telegram token: set %s or telegram_token", config.EnvTelegramToken)
	}
	tg, err := bot.NewTelegram(cfg.TelegramToken, logger.Named("telegram"))
	if err != nil {
		return err
	}
	router, err := a.router(ctx, tg)
	if err != nil {
		return err
	}
	jobs, err := a.jobs(tg)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(jobs, scheduler.Specs{
		Morning:   cfg.MorningSchedule,
		Evening:   cfg.EveningSchedule,
		Reminders: cfg.ReminderSchedule,
	}, a.loc, logger.Named("scheduler"))
	if err != nil {
		return err
	}
	srv := server.New(cfg.HTTPAddr, a.checks(), logger.Named("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tg.Run(gctx, router) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	logger.Info("taskbot started", zap.String("ledger", cfg.Ledger), zap.String("timezone", cfg.Timezone))
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// dateFlag parses a DD.MM.YYYY flag value, defaulting to today.
func dateFlag(value string, loc *time.Location) (civil.Date, error) {
	if value == "" {
		return util.Today(time.Now(), loc), nil
	}
	return util.ParseDate(value)
}

func runExpand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	from, err := dateFlag(expandDate, a.loc)
	if err != nil {
		return err
	}
	days := expandDays
	if days < 0 {
		days = cfg.LookaheadDays
	}
	templates, err := a.store.QueryTemplates(ctx, "")
	if err != nil {
		return err
	}
	res, err := a.recurrence().ExpandRange(ctx, templates, from, from.AddDays(days))
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %v\n", w)
	}
	fmt.Print(present.Created(res.Created))
	fmt.Printf("%d created, %d already present, %d templates skipped\n", len(res.Created), res.Existing, res.Skipped)
	if len(res.Unconfirmed) > 0 {
		fmt.Printf("%d unconfirmed after write conflicts, run again to re-check\n", len(res.Unconfirmed))
	}
	return nil
}

func runAdvance(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	completed, err := dateFlag(advanceDate, a.loc)
	if err != nil {
		return err
	}
	profiles, err := a.store.QuerySupplierProfiles(ctx, true)
	if err != nil {
		return err
	}
	p := cadence.Resolve(profiles, args[0], cadence.DefaultNormalize)
	if p == nil {
		return fmt.Errorf("no active supplier matches %q", args[0])
	}
	points := advancePoints
	if len(points) == 0 {
		points = p.DeliveryPoints
	}
	res, err := a.cadence().Advance(ctx, advanceOwner, p, completed, points)
	if err != nil {
		return err
	}
	fmt.Printf("%s: delivery %s, next order %s\n", p.Name, util.FormatDate(res.DeliveryDate), util.FormatDate(res.ReorderDate))
	fmt.Print(present.Created(res.Created))
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	date, err := dateFlag(planDate, a.loc)
	if err != nil {
		return err
	}
	var instances []model.Instance
	if planUser == "" {
		instances, err = a.store.QueryInstances(ctx, "", date, date)
	} else {
		var u model.User
		if u, err = ledger.FindUser(ctx, a.store, planUser); err == nil {
			instances, err = ledger.Visible(ctx, a.store, u, date, date)
		}
	}
	if err != nil {
		return err
	}
	text, _ := present.Plan(date, instances)
	fmt.Println(text)
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	seed, err := config.ReadSeed(args[0])
	if err != nil {
		return err
	}
	if err := seed.Validate(); err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.sheets != nil {
		if err := a.sheets.EnsureHeaders(ctx); err != nil {
			return err
		}
	}
	if err := seed.Apply(ctx, a.store); err != nil {
		return err
	}
	fmt.Printf("Seeded %d templates, %d suppliers, %d users\n", len(seed.Templates), len(seed.Suppliers), len(seed.Users))
	return nil
}

func runAuth(cmd *cobra.Command, args []string) error {
	if authCheck {
		if cfg.CredentialsFile == "" {
			return errors.New("credentials_file is not configured")
		}
		sa, err := auth.CheckCredentials(cfg.CredentialsFile)
		if err != nil {
			return err
		}
		fmt.Printf("Service account: %s\nProject: %s\n", sa.ClientEmail, sa.ProjectID)
		fmt.Println("Share the spreadsheet and the calendar with this address.")
		return nil
	}
	dir := filepath.Dir(configPath)
	a := &auth.Authenticator{ConfigDir: dir, Logger: logger}
	if err := a.Reauthorize(cmd.Context()); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	fmt.Printf("Authentication successful! Token saved to %s\n", filepath.Join(dir, auth.TokenFile))
	return nil
}
