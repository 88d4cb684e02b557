package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"freight/internal/adapters/out/postgres"
	"freight/internal/core/application/lifecycle"
	"freight/internal/pkg/errs"
	"freight/internal/workflow"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
)

// Journal drivers.
const (
	JournalPostgres = "postgres"
	JournalSQLite   = "sqlite"
	JournalMemory   = "memory"
)

// Config is read once from the environment at startup. Every field maps to
// the environment variable named in its koanf tag, upper-cased.
type Config struct {
	HTTPPort string `koanf:"http_port"`

	DBHost     string `koanf:"db_host"`
	DBPort     string `koanf:"db_port"`
	DBUser     string `koanf:"db_user"`
	DBPassword string `koanf:"db_password"`
	DBName     string `koanf:"db_name"`
	DBSslMode  string `koanf:"db_sslmode"`
	DBDebug    bool   `koanf:"db_debug"`

	GMapsKey string `koanf:"gmaps_key"`

	OpenAIAPIKey string `koanf:"openai_api_key"`
	OpenAIModel  string `koanf:"openai_model"`

	TwilioAccountSID  string `koanf:"twilio_account_sid"`
	TwilioAuthToken   string `koanf:"twilio_auth_token"`
	TwilioPhoneNumber string `koanf:"twilio_phone_number"`

	NotifyThresholdSecs int64 `koanf:"notify_threshold_secs"`
	RotationCeiling     int   `koanf:"rotation_ceiling"`

	ActivityTimeout         time.Duration `koanf:"activity_timeout"`
	RetryMaxAttempts        int           `koanf:"retry_max_attempts"`
	RetryInitialInterval    time.Duration `koanf:"retry_initial_interval"`
	RetryBackoffCoefficient float64       `koanf:"retry_backoff_coefficient"`

	JournalDriver     string        `koanf:"journal_driver"`
	JournalSQLitePath string        `koanf:"journal_sqlite_path"`
	JournalRetention  time.Duration `koanf:"journal_retention"`

	RecoverySchedule   string `koanf:"recovery_schedule"`
	CompactionSchedule string `koanf:"compaction_schedule"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// DefaultConfig returns the settings used for every variable left unset.
func DefaultConfig() Config {
	policy := workflow.DefaultRetryPolicy()

	return Config{
		HTTPPort: "8080",

		DBHost:    "localhost",
		DBPort:    "5432",
		DBUser:    "postgres",
		DBName:    "freight",
		DBSslMode: "disable",

		NotifyThresholdSecs: lifecycle.DefaultNotifyThresholdSecs,
		RotationCeiling:     lifecycle.DefaultRotationCeiling,

		ActivityTimeout:         policy.StartToCloseTimeout,
		RetryMaxAttempts:        policy.MaximumAttempts,
		RetryInitialInterval:    policy.InitialInterval,
		RetryBackoffCoefficient: policy.BackoffCoefficient,

		JournalDriver:     JournalPostgres,
		JournalSQLitePath: "freight-journal.db",
		JournalRetention:  7 * 24 * time.Hour,

		RecoverySchedule:   "0 * * * * *",
		CompactionSchedule: "0 30 3 * * *",

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadConfig overlays the process environment on DefaultConfig and
// validates the result.
func LoadConfig() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(key), value
		},
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errList []error

	if strings.TrimSpace(c.HTTPPort) == "" {
		errList = append(errList, errs.NewValueIsRequiredError("HTTP_PORT"))
	}
	if strings.TrimSpace(c.GMapsKey) == "" {
		errList = append(errList, errs.NewValueIsRequiredError("GMAPS_KEY"))
	}
	if c.NotifyThresholdSecs < 1 {
		errList = append(errList, errs.NewValueIsOutOfRangeError("NOTIFY_THRESHOLD_SECS", c.NotifyThresholdSecs, 1, "unbounded"))
	}
	if c.RotationCeiling < 1 {
		errList = append(errList, errs.NewValueIsOutOfRangeError("ROTATION_CEILING", c.RotationCeiling, 1, "unbounded"))
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		errList = append(errList, err)
	}

	switch c.JournalDriver {
	case JournalPostgres, JournalMemory:
	case JournalSQLite:
		if strings.TrimSpace(c.JournalSQLitePath) == "" {
			errList = append(errList, errs.NewValueIsRequiredError("JOURNAL_SQLITE_PATH"))
		}
	default:
		errList = append(errList, errs.NewValueIsInvalidErrorWithCause("JOURNAL_DRIVER",
			fmt.Errorf("unknown driver %q", c.JournalDriver)))
	}

	if c.JournalRetention <= 0 {
		errList = append(errList, errs.NewValueIsInvalidError("JOURNAL_RETENTION"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errList = append(errList, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errList = append(errList, errs.NewValueIsInvalidErrorWithCause("LOG_FORMAT",
			fmt.Errorf("want text or json, got %q", c.LogFormat)))
	}

	return errors.Join(errList...)
}

// Postgres returns the database connection settings.
func (c Config) Postgres() postgres.Config {
	return postgres.Config{
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		DBName:   c.DBName,
		SSLMode:  c.DBSslMode,
		Debug:    c.DBDebug,
	}
}

// RetryPolicy applies the configured activity settings on top of the
// default policy.
func (c Config) RetryPolicy() workflow.RetryPolicy {
	policy := workflow.DefaultRetryPolicy()
	policy.StartToCloseTimeout = c.ActivityTimeout
	policy.MaximumAttempts = c.RetryMaxAttempts
	policy.InitialInterval = c.RetryInitialInterval
	policy.BackoffCoefficient = c.RetryBackoffCoefficient
	return policy
}

// LifecycleDefaults returns the values used for deliveries that do not set
// their own threshold or rotation ceiling.
func (c Config) LifecycleDefaults() lifecycle.Defaults {
	return lifecycle.Defaults{
		NotifyThresholdSecs: c.NotifyThresholdSecs,
		RotationCeiling:     c.RotationCeiling,
	}
}

// SlogLevel parses LOG_LEVEL.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errs.NewValueIsInvalidErrorWithCause("LOG_LEVEL", err)
	}
	return level, nil
}

// SMSConfigured reports whether all Twilio credentials are present.
func (c Config) SMSConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}
