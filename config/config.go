package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type DatabaseOptions struct {
	URL             string        `env:"DATABASE_URL"`
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD" envDefault:"postgres"`
	Name            string        `env:"DB_NAME" envDefault:"student_tracker_db"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	Migrate         bool          `env:"DB_MIGRATE" envDefault:"true"`
}

type RedisOptions struct {
	Addr       string        `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Password   string        `env:"REDIS_PASSWORD"`
	DB         int           `env:"REDIS_DB" envDefault:"8"`
	ReceiptTTL time.Duration `env:"RECEIPT_TTL" envDefault:"24h"`
}

type BatchOptions struct {
	MaxInFlight int `env:"BATCH_MAX_IN_FLIGHT" envDefault:"16"`
	MaxItems    int `env:"BATCH_MAX_ITEMS" envDefault:"1000"`
}

type Config struct {
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`
	GinMode        string `env:"GIN_MODE" envDefault:"release"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"text"`
	ImportMaxBytes int64  `env:"IMPORT_MAX_BYTES" envDefault:"8388608"`

	Database DatabaseOptions
	Redis    RedisOptions
	Batch    BatchOptions
}

// Load reads the given env files, skipping missing ones, and parses the
// process environment into a Config. Variables already set win over files.
func Load(files ...string) (*Config, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", f, err)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.Batch.MaxInFlight <= 0 {
		return nil, fmt.Errorf("BATCH_MAX_IN_FLIGHT must be positive, got %d", cfg.Batch.MaxInFlight)
	}
	return cfg, nil
}

// DSN returns DATABASE_URL when set, otherwise a postgres URL built from the
// discrete DB_* settings.
func (d DatabaseOptions) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}
