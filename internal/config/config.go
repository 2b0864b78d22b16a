package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DBFile        string        `env:"PARLEY_DB" envDefault:"parley.db"`
	AdminAddr     string        `env:"ADMIN_ADDR" envDefault:"localhost:8081"`
	APIAddr       string        `env:"API_ADDR" envDefault:":8080"`
	BaseURL       string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	UploadsPath   string        `env:"UPLOADS_PATH" envDefault:"uploads"`
	TokenExpiry   time.Duration `env:"TOKEN_EXPIRY" envDefault:"24h"`
	IOWorkers     int           `env:"IO_WORKERS" envDefault:"16"`
	MaxMediaBytes int64         `env:"MAX_MEDIA_BYTES" envDefault:"10485760"`
	HistoryLimit  int           `env:"HISTORY_LIMIT" envDefault:"50"`
	ErrorEvents   bool          `env:"ERROR_EVENTS" envDefault:"false"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string        `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads the configuration from the environment, after loading a .env
// file from the working directory if there is one.
func Load(cliMode bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return parse(env.Options{}, cliMode)
}

func parse(opts env.Options, cliMode bool) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings the server needs. The CLI only talks to the
// admin API, so it skips them.
func (c *Config) Validate(cliMode bool) error {
	if c.AdminAddr == "" {
		return fmt.Errorf("ADMIN_ADDR is required")
	}
	if cliMode {
		return nil
	}

	if c.DBFile == "" {
		return fmt.Errorf("PARLEY_DB is required")
	}
	if c.UploadsPath == "" {
		return fmt.Errorf("UPLOADS_PATH is required")
	}
	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}
	if c.IOWorkers <= 0 {
		return fmt.Errorf("IO_WORKERS must be greater than 0")
	}
	if c.MaxMediaBytes <= 0 {
		return fmt.Errorf("MAX_MEDIA_BYTES must be greater than 0")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be greater than 0")
	}
	if _, err := c.level(); err != nil {
		return err
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	return nil
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// NewLogger builds the process logger described by LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := c.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
