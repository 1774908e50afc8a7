// Package app assembles the broker, stores and observers from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/animus-labs/flowq/internal/broker"
	"github.com/animus-labs/flowq/internal/collection"
	"github.com/animus-labs/flowq/internal/encoding/codec"
	"github.com/animus-labs/flowq/internal/flow"
	"github.com/animus-labs/flowq/internal/journal"
	"github.com/animus-labs/flowq/internal/platform/idgen"
	platformstore "github.com/animus-labs/flowq/internal/platform/objectstore"
	"github.com/animus-labs/flowq/internal/platform/postgres"
	"github.com/animus-labs/flowq/internal/repo"
	pgrepo "github.com/animus-labs/flowq/internal/repo/postgres"
	"github.com/animus-labs/flowq/internal/state"
	"github.com/animus-labs/flowq/internal/storage/memory"
	"github.com/animus-labs/flowq/internal/storage/objectstore"
)

var (
	ErrNoDatabase    = errors.New("no database configured")
	ErrNoObjectStore = errors.New("no object store configured")
)

// App holds one configured runtime. Without a database the state and cancel
// stores live in memory; without an object store so do results.
type App struct {
	Logger   *slog.Logger
	Broker   *broker.Local
	Composer *flow.Composer

	States  repo.StateRepository
	Cancels repo.CancelRepository
	Results collection.Backend

	db      *sql.DB
	durable bool
}

type resultStore interface {
	collection.Backend
	collection.Storer
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	newID, err := idgen.FromName(cfg.IDFormat)
	if err != nil {
		return nil, err
	}

	a := &App{Logger: logger}
	if err := a.openStates(ctx, cfg); err != nil {
		return nil, err
	}
	results, err := a.openResults(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Results = results

	a.Broker = broker.NewLocal(
		broker.WithLogger(logger),
		broker.WithResultBackend(results),
		broker.WithStateBackend(a.States),
		broker.WithCancelBackend(a.Cancels),
	)
	recorder, err := state.NewRecorder(a.States, a.Broker, cfg.StateTTL, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Broker.Observe(recorder)
	if a.db != nil {
		a.Broker.Observe(journal.NewObserver(a.db))
	}
	a.Composer = flow.NewComposer(a.Broker, newID)
	return a, nil
}

func (a *App) openStates(ctx context.Context, cfg Config) error {
	if !cfg.Database.Enabled() {
		a.States = memory.NewStateStore()
		a.Cancels = memory.NewCancelStore()
		a.Logger.Debug("using in-memory state store")
		return nil
	}
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	if cfg.EnsureSchema {
		if err := pgrepo.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return err
		}
	}
	a.db = db
	a.durable = true
	a.States = pgrepo.NewStateStore(db)
	a.Cancels = pgrepo.NewCancelStore(db)
	return nil
}

func (a *App) openResults(ctx context.Context, cfg Config) (resultStore, error) {
	if !cfg.Objects.Enabled() {
		a.Logger.Debug("using in-memory result store")
		return memory.NewResultStore(), nil
	}
	client, err := platformstore.NewMinIOClient(cfg.Objects)
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}
	if err := platformstore.EnsureResultsBucket(ctx, client, cfg.Objects); err != nil {
		return nil, err
	}
	store, err := objectstore.NewMinioStoreWithClient(client)
	if err != nil {
		return nil, err
	}
	registry, err := codec.NewRegistry()
	if err != nil {
		return nil, err
	}
	c, err := registry.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	return objectstore.NewResultStore(store, cfg.Objects.BucketResults, cfg.ResultsPrefix, c,
		objectstore.WithReadParallelism(cfg.Objects.ReadParallelism),
		objectstore.WithDecoders(registry),
	)
}

// Durable reports whether state and cancellations outlive the process.
func (a *App) Durable() bool {
	return a.durable
}

// DurableResults reports whether results outlive the process.
func (a *App) DurableResults() bool {
	_, ok := a.Results.(*objectstore.ResultStore)
	return ok
}

// PurgeExpired drops expired state records.
func (a *App) PurgeExpired(ctx context.Context) (int64, error) {
	purger, ok := a.States.(repo.Purger)
	if !ok {
		return 0, fmt.Errorf("state store %T cannot purge", a.States)
	}
	return purger.PurgeExpired(ctx)
}

func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
