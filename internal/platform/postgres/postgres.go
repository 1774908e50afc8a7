package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/animus-labs/flowq/internal/platform/env"
)

type Config struct {
	URL             string
	PingTimeout     time.Duration
	ConnectTimeout  time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func ConfigFromEnv(src env.Source) (Config, error) {
	pingTimeout, err := src.Duration("database.ping_timeout", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	connectTimeout, err := src.Duration("database.connect_timeout", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	maxOpenConns, err := src.Int("database.max_open_conns", 10)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := src.Int("database.max_idle_conns", 5)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := src.Duration("database.conn_max_lifetime", 30*time.Minute)
	if err != nil {
		return Config{}, err
	}
	connMaxIdleTime, err := src.Duration("database.conn_max_idle_time", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		URL:             src.String("database.url", ""),
		PingTimeout:     pingTimeout,
		ConnectTimeout:  connectTimeout,
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		ConnMaxIdleTime: connMaxIdleTime,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Enabled reports whether a database was configured; without one the CLI
// falls back to in-memory stores.
func (c Config) Enabled() bool {
	return c.URL != ""
}

func (c Config) Validate() error {
	if c.PingTimeout <= 0 {
		return errors.New("FLOWQ_DATABASE_PING_TIMEOUT must be positive")
	}
	if c.ConnectTimeout < c.PingTimeout {
		return errors.New("FLOWQ_DATABASE_CONNECT_TIMEOUT must be >= FLOWQ_DATABASE_PING_TIMEOUT")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("FLOWQ_DATABASE_MAX_OPEN_CONNS must be >= 1")
	}
	if c.MaxIdleConns < 0 {
		return errors.New("FLOWQ_DATABASE_MAX_IDLE_CONNS must be >= 0")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("FLOWQ_DATABASE_MAX_IDLE_CONNS must be <= FLOWQ_DATABASE_MAX_OPEN_CONNS")
	}
	if c.ConnMaxLifetime < 0 {
		return errors.New("FLOWQ_DATABASE_CONN_MAX_LIFETIME must be >= 0")
	}
	if c.ConnMaxIdleTime < 0 {
		return errors.New("FLOWQ_DATABASE_CONN_MAX_IDLE_TIME must be >= 0")
	}
	return nil
}

// Open connects and pings until the database answers or ConnectTimeout passes.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, errors.New("FLOWQ_DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = cfg.ConnectTimeout
	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	}
	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return db, nil
}
