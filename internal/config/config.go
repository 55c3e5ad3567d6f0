package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/studybot/internal/clock"
)

// Config is the full runtime configuration of the bot
type Config struct {
	BotToken  string          `yaml:"bot_token"`
	OwnerID   int64           `yaml:"owner_id"`
	Timezone  string          `yaml:"timezone"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Reminder  ReminderConfig  `yaml:"reminder"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Log       LogConfig       `yaml:"log"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3 or postgres
	DSN    string `yaml:"dsn"`
}

type SchedulerConfig struct {
	// Interval between job scheduler ticks
	Interval time.Duration `yaml:"interval"`
	// HandlerTimeout bounds a single job handler run
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
	// ReminderInterval between reminder gate evaluations
	ReminderInterval time.Duration `yaml:"reminder_interval"`
}

type ReminderConfig struct {
	NudgeAt       string `yaml:"nudge_at"`
	EscalationAt  string `yaml:"escalation_at"`
	SnoozeMinutes int    `yaml:"snooze_minutes"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads .env (if present), the environment and then the optional YAML
// file at path, later sources overriding earlier ones.
func Load(path string) (*Config, error) {
	// .env is optional in production
	_ = godotenv.Load()

	ownerID, err := getEnvInt64("OWNER_TELEGRAM_ID", 0)
	if err != nil {
		return nil, err
	}
	snooze, err := getEnvInt64("SNOOZE_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	interval, err := getEnvDuration("SCHEDULER_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	handlerTimeout, err := getEnvDuration("HANDLER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	reminderInterval, err := getEnvDuration("REMINDER_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		OwnerID:  ownerID,
		Timezone: getEnv("TZ_NAME", "Europe/Helsinki"),
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite3"),
			DSN:    getEnv("DB_DSN", "data/studybot.db"),
		},
		Scheduler: SchedulerConfig{
			Interval:         interval,
			HandlerTimeout:   handlerTimeout,
			ReminderInterval: reminderInterval,
		},
		Reminder: ReminderConfig{
			NudgeAt:       getEnv("NUDGE_AT", "18:00"),
			EscalationAt:  getEnv("ESCALATION_AT", "19:00"),
			SnoozeMinutes: int(snooze),
		},
		OpenAI: OpenAIConfig{
			APIKey: getEnv("OPENAI_API_KEY", ""),
			Model:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Validate checks that the configuration can run the bot
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is not set"))
	}
	if c.OwnerID <= 0 {
		errs = append(errs, errors.New("OWNER_TELEGRAM_ID missing or invalid"))
	}
	if _, err := clock.Location(c.Timezone); err != nil {
		errs = append(errs, err)
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database dsn is empty"))
	}
	if c.Scheduler.Interval <= 0 || c.Scheduler.ReminderInterval <= 0 {
		errs = append(errs, errors.New("scheduler intervals must be positive"))
	}
	if c.Scheduler.HandlerTimeout <= 0 {
		errs = append(errs, errors.New("handler timeout must be positive"))
	}
	nh, nm, err := clock.ParseHHMM(c.Reminder.NudgeAt)
	if err != nil {
		errs = append(errs, fmt.Errorf("nudge_at: %w", err))
	}
	eh, em, err2 := clock.ParseHHMM(c.Reminder.EscalationAt)
	if err2 != nil {
		errs = append(errs, fmt.Errorf("escalation_at: %w", err2))
	}
	if err == nil && err2 == nil && nh*60+nm >= eh*60+em {
		errs = append(errs, errors.New("nudge_at must be earlier than escalation_at"))
	}
	if c.Reminder.SnoozeMinutes <= 0 {
		errs = append(errs, errors.New("snooze minutes must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
