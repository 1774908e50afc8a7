package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/flowq/internal/platform/env"
	"github.com/animus-labs/flowq/internal/platform/logging"
	"github.com/animus-labs/flowq/internal/platform/objectstore"
	"github.com/animus-labs/flowq/internal/platform/postgres"
	"github.com/animus-labs/flowq/internal/state"
)

type Config struct {
	IDFormat      string
	Codec         string
	ResultsPrefix string
	StateTTL      time.Duration
	EnsureSchema  bool

	Database postgres.Config
	Objects  objectstore.Config
	Log      logging.Config
}

func ConfigFromEnv(src env.Source) (Config, error) {
	ttl, err := src.Duration("state.ttl", state.DefaultTTL)
	if err != nil {
		return Config{}, err
	}
	ensure, err := src.Bool("database.ensure_schema", true)
	if err != nil {
		return Config{}, err
	}
	db, err := postgres.ConfigFromEnv(src)
	if err != nil {
		return Config{}, fmt.Errorf("database config: %w", err)
	}
	objects, err := objectstore.ConfigFromEnv(src)
	if err != nil {
		return Config{}, fmt.Errorf("object store config: %w", err)
	}
	logCfg, err := logging.ConfigFromEnv(src)
	if err != nil {
		return Config{}, fmt.Errorf("log config: %w", err)
	}

	cfg := Config{
		IDFormat:      src.String("id.format", "uuid"),
		Codec:         src.String("results.codec", "json"),
		ResultsPrefix: src.String("results.prefix", "results"),
		StateTTL:      ttl,
		EnsureSchema:  ensure,
		Database:      db,
		Objects:       objects,
		Log:           logCfg,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.StateTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", env.Name("state.ttl")))
	}
	switch strings.ToLower(c.IDFormat) {
	case "", "uuid", "ulid":
	default:
		errs = append(errs, fmt.Errorf("%s must be uuid or ulid, got %q", env.Name("id.format"), c.IDFormat))
	}
	switch strings.ToLower(c.Codec) {
	case "", "json", "cbor":
	default:
		errs = append(errs, fmt.Errorf("%s must be json or cbor, got %q", env.Name("results.codec"), c.Codec))
	}
	return errors.Join(errs...)
}
