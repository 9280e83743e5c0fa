// Package config loads worker settings from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/adhocore/gronx"
	"github.com/sethvargo/go-envconfig"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env string `env:"ENV,default=local"`

	Server    ServerConfig
	Database  DatabaseConfig
	Telegram  TelegramConfig
	Scheduler SchedulerConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Reminder  ReminderConfig
	Process   ProcessConfig
}

type ServerConfig struct {
	Address string `env:"SERVER_ADDRESS,default=:8080"`
}

type DatabaseConfig struct {
	Driver string `env:"DATABASE_DRIVER,default=pgx"`
	URL    string `env:"DATABASE_URL"`
}

type TelegramConfig struct {
	Token  string `env:"TELEGRAM_BOT_TOKEN"`
	APIURL string `env:"TELEGRAM_API_URL"`

	NoticeTTL       time.Duration `env:"NOTICE_TTL,default=5s"`
	SessionTTL      time.Duration `env:"SESSION_TTL,default=15m"`
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT,default=30s"`
}

type SchedulerConfig struct {
	Interval time.Duration `env:"POLL_INTERVAL,default=3s"`

	// StaleAfter of zero leaves stuck PROCESSING tasks alone.
	StaleAfter time.Duration `env:"TASK_STALE_AFTER,default=0s"`
}

type RedisConfig struct {
	Address  string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB,default=0"`
	TTL      time.Duration `env:"REDIS_TTL,default=24h"`
}

func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

type StorageConfig struct {
	Endpoint  string `env:"STORAGE_ENDPOINT"`
	AccessKey string `env:"STORAGE_ACCESS_KEY"`
	SecretKey string `env:"STORAGE_SECRET_KEY"`
	Bucket    string `env:"STORAGE_BUCKET"`
	Region    string `env:"STORAGE_REGION,default=us-east-1"`
	UseSSL    bool   `env:"STORAGE_USE_SSL,default=true"`
	PublicURL string `env:"STORAGE_PUBLIC_URL"`
}

func (c StorageConfig) Enabled() bool {
	return c.Endpoint != ""
}

type ReminderConfig struct {
	Timezone     string `env:"TIMEZONE,default=Asia/Tashkent"`
	TodayCron    string `env:"REMINDER_TODAY_CRON,default=0 8 * * *"`
	TomorrowCron string `env:"REMINDER_TOMORROW_CRON,default=0 18 * * *"`
	CleanupCron  string `env:"CLEANUP_CRON,default=0 3 * * *"`
}

// Location is valid once LoadAll has succeeded.
func (c ReminderConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ProcessConfig struct {
	PIDFile string `env:"PID_FILE,default=/tmp/promed-bot.pid"`
}

func LoadAll(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &cfg, l); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RequireTelegram reports a missing bot token. Commands that never talk to
// Telegram skip it.
func (c *Config) RequireTelegram() error {
	if c.Telegram.Token == "" {
		return errors.New("missing required env var: TELEGRAM_BOT_TOKEN")
	}
	return nil
}

func validate(cfg *Config) error {
	var errs []error

	switch cfg.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("ENV must be one of local, dev, prod: %q", cfg.Env))
	}

	switch cfg.Database.Driver {
	case "pgx", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be pgx or sqlite3: %q", cfg.Database.Driver))
	}
	if cfg.Database.URL == "" {
		errs = append(errs, errors.New("missing required env var: DATABASE_URL"))
	}

	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be > 0"))
	}
	if cfg.Scheduler.StaleAfter < 0 {
		errs = append(errs, errors.New("TASK_STALE_AFTER must be >= 0"))
	}
	if cfg.Telegram.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be > 0"))
	}
	if cfg.Telegram.NoticeTTL <= 0 {
		errs = append(errs, errors.New("NOTICE_TTL must be > 0"))
	}
	if cfg.Telegram.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("DOWNLOAD_TIMEOUT must be > 0"))
	}

	if cfg.Redis.Enabled() && cfg.Redis.TTL <= 0 {
		errs = append(errs, errors.New("REDIS_TTL must be > 0"))
	}

	if cfg.Storage.Enabled() {
		for key, val := range map[string]string{
			"STORAGE_ACCESS_KEY": cfg.Storage.AccessKey,
			"STORAGE_SECRET_KEY": cfg.Storage.SecretKey,
			"STORAGE_BUCKET":     cfg.Storage.Bucket,
		} {
			if val == "" {
				errs = append(errs, fmt.Errorf("missing required env var: %s", key))
			}
		}
	}

	if _, err := time.LoadLocation(cfg.Reminder.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Reminder.Timezone, err))
	}
	cron := gronx.New()
	for key, expr := range map[string]string{
		"REMINDER_TODAY_CRON":    cfg.Reminder.TodayCron,
		"REMINDER_TOMORROW_CRON": cfg.Reminder.TomorrowCron,
		"CLEANUP_CRON":           cfg.Reminder.CleanupCron,
	} {
		if !cron.IsValid(expr) {
			errs = append(errs, fmt.Errorf("invalid cron expression for %s: %q", key, expr))
		}
	}

	return errors.Join(errs...)
}
