package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the process configuration. Runtime-tunable values (poll interval,
// operators, log level) live in the settings file instead, see package settings.
type Config struct {
	HTTPServer `yaml:"http_server"`
	Files      `yaml:"files"`
	Auth       `yaml:"auth"`
	Scheduler  `yaml:"scheduler"`

	Timezone  string `yaml:"timezone" env:"REMINDBOT_TIMEZONE" env-default:"UTC"`
	LogFormat string `yaml:"log_format" env:"REMINDBOT_LOG_FORMAT" env-default:"text"`
	// DryRun swaps the Discord adapter for the in-memory platform.
	DryRun bool `yaml:"dry_run" env:"REMINDBOT_DRY_RUN" env-default:"false"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env:"REMINDBOT_HTTP_ADDRESS" env-default:"localhost:8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"REMINDBOT_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type Files struct {
	Data     string `yaml:"data" env:"REMINDBOT_DATA_FILE" env-default:"reminders.json"`
	Settings string `yaml:"settings" env:"REMINDBOT_SETTINGS_FILE" env-default:"settings.json"`
	Control  string `yaml:"control" env:"REMINDBOT_CONTROL_FILE" env-default:"launcher_control.json"`
	AuditDB  string `yaml:"audit_db" env:"REMINDBOT_AUDIT_DB" env-default:"audit.db"`
}

type Auth struct {
	JWTSecret        string        `yaml:"jwt_secret" env:"REMINDBOT_JWT_SECRET"`
	TokenTTL         time.Duration `yaml:"token_ttl" env:"REMINDBOT_TOKEN_TTL" env-default:"24h"`
	BridgeSecretHash string        `yaml:"bridge_secret_hash" env:"REMINDBOT_BRIDGE_SECRET_HASH"`
}

type Scheduler struct {
	SettingsPoll   time.Duration `yaml:"settings_poll" env:"REMINDBOT_SETTINGS_POLL" env-default:"5s"`
	AuditRetention time.Duration `yaml:"audit_retention" env:"REMINDBOT_AUDIT_RETENTION" env-default:"720h"`
}

// Load reads an optional .env file, then the YAML file at path (when non-empty),
// then environment overrides.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	if path == "" {
		path = os.Getenv("REMINDBOT_CONFIG")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%s: config file %s: %w", op, path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("%s: cannot read config: %w", op, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("%s: cannot read environment: %w", op, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.SettingsPoll <= 0 {
		return fmt.Errorf("settings poll interval must be positive")
	}
	return nil
}
