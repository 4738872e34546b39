package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/parse"
	"github.com/harrisonrobin/taskbot/pkg/util"
	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

const (
	xdgAppName = "taskbot"
	configFile = "config.json"
)

// Ledger backends.
const (
	LedgerMemory = "memory"
	LedgerSQLite = "sqlite"
	LedgerSheets = "sheets"
)

// Config is the bot configuration. The file is JSON with comments allowed.
type Config struct {
	Timezone         string        `json:"timezone"`
	Epoch            string        `json:"epoch"`
	Ledger           string        `json:"ledger"`
	SQLitePath       string        `json:"sqlite_path,omitempty"`
	SpreadsheetID    string        `json:"spreadsheet_id,omitempty"`
	CredentialsFile  string        `json:"credentials_file,omitempty"`
	Calendar         string        `json:"calendar,omitempty"`
	TelegramToken    string        `json:"telegram_token,omitempty"`
	GeminiKey        string        `json:"gemini_api_key,omitempty"`
	GeminiModel      string        `json:"gemini_model,omitempty"`
	RedisURL         string        `json:"redis_url,omitempty"`
	HTTPAddr         string        `json:"http_addr"`
	MorningSchedule  string        `json:"morning_schedule"`
	EveningSchedule  string        `json:"evening_schedule"`
	ReminderSchedule string        `json:"reminder_schedule"`
	ReminderLeadMin  int           `json:"reminder_lead_minutes"`
	LookaheadDays    int           `json:"lookahead_days"`
	DeliveryDeadline string        `json:"delivery_deadline"`
	Lexicon          parse.Lexicon `json:"lexicon"`
}

// Environment overrides for secrets and deployment-specific values.
const (
	EnvTelegramToken = "TASKBOT_TELEGRAM_TOKEN"
	EnvGeminiKey     = "GEMINI_API_KEY"
	EnvRedisURL      = "REDIS_URL"
	EnvSpreadsheetID = "TASKBOT_SPREADSHEET_ID"
)

var errUnknownKey = errors.New("unknown config key")

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = "Europe/Moscow"
	}
	if c.Epoch == "" {
		c.Epoch = "2025-01-01"
	}
	if c.Ledger == "" {
		switch {
		case c.SpreadsheetID != "":
			c.Ledger = LedgerSheets
		case c.SQLitePath != "":
			c.Ledger = LedgerSQLite
		default:
			c.Ledger = LedgerMemory
		}
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.MorningSchedule == "" {
		c.MorningSchedule = "0 9 * * *"
	}
	if c.EveningSchedule == "" {
		c.EveningSchedule = "0 19 * * *"
	}
	if c.ReminderSchedule == "" {
		c.ReminderSchedule = "*/10 * * * *"
	}
	if c.ReminderLeadMin == 0 {
		c.ReminderLeadMin = 30
	}
	if c.LookaheadDays == 0 {
		c.LookaheadDays = 7
	}
	if c.DeliveryDeadline == "" {
		c.DeliveryDeadline = "10:00"
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvTelegramToken); v != "" {
		c.TelegramToken = v
	}
	if v := getenv(EnvGeminiKey); v != "" {
		c.GeminiKey = v
	}
	if v := getenv(EnvRedisURL); v != "" {
		c.RedisURL = v
	}
	if v := getenv(EnvSpreadsheetID); v != "" {
		c.SpreadsheetID = v
	}
}

// Dir is the directory holding the config file, tokens and state.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads the config file, applies environment overrides and defaults.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path, os.Getenv)
}

// LoadFrom is Load with an explicit path and environment.
func LoadFrom(path string, getenv func(string) string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(getenv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ReadFile reads the file alone, without overrides or defaults. A missing
// file yields an empty config.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Chmod(path, 0600)
}

// Validate checks fields that other packages would otherwise reject late.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.EpochDate(); err != nil {
		return err
	}
	switch c.Ledger {
	case LedgerMemory, LedgerSQLite, LedgerSheets:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger)
	}
	if c.Ledger == LedgerSheets && c.SpreadsheetID == "" {
		return errors.New("ledger sheets needs spreadsheet_id")
	}
	if _, err := util.ParseClock(c.DeliveryDeadline); err != nil {
		return fmt.Errorf("delivery_deadline: %w", err)
	}
	if c.ReminderLeadMin < 0 || c.LookaheadDays < 0 {
		return errors.New("reminder_lead_minutes and lookahead_days must not be negative")
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) EpochDate() (civil.Date, error) {
	d, err := civil.ParseDate(c.Epoch)
	if err != nil {
		return civil.Date{}, fmt.Errorf("epoch %q: %w", c.Epoch, err)
	}
	return d, nil
}

func (c *Config) ReminderLead() time.Duration {
	return time.Duration(c.ReminderLeadMin) * time.Minute
}

// Set assigns a field by its JSON name, as used by "config set".
func (c *Config) Set(key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return n, nil
	}
	switch key {
	case "timezone":
		c.Timezone = value
	case "epoch":
		c.Epoch = value
	case "ledger":
		c.Ledger = value
	case "sqlite_path":
		c.SQLitePath = value
	case "spreadsheet_id":
		c.SpreadsheetID = value
	case "credentials_file":
		c.CredentialsFile = value
	case "calendar":
		c.Calendar = value
	case "telegram_token":
		c.TelegramToken = value
	case "gemini_api_key":
		c.GeminiKey = value
	case "gemini_model":
		c.GeminiModel = value
	case "redis_url":
		c.RedisURL = value
	case "http_addr":
		c.HTTPAddr = value
	case "morning_schedule":
		c.MorningSchedule = value
	case "evening_schedule":
		c.EveningSchedule = value
	case "reminder_schedule":
		c.ReminderSchedule = value
	case "delivery_deadline":
		c.DeliveryDeadline = value
	case "reminder_lead_minutes":
		n, err := atoi()
		if err != nil {
			return err
		}
		c.ReminderLeadMin = n
	case "lookahead_days":
		n, err := atoi()
		if err != nil {
			return err
		}
		c.LookaheadDays = n
	case "lexicon.suppliers":
		c.Lexicon.Suppliers = util.SplitList(value)
	case "lexicon.points":
		c.Lexicon.Points = util.SplitList(value)
	case "lexicon.categories":
		c.Lexicon.Categories = util.SplitList(value)
	default:
		return fmt.Errorf("%w: %s", errUnknownKey, strings.TrimSpace(key))
	}
	return nil
}
