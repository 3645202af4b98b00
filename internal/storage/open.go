// Package storage picks and opens the access.Store named by the config.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cinegate/internal/access"
	"cinegate/internal/config"
	"cinegate/internal/db"
	"cinegate/internal/memstore"
	"cinegate/internal/pgstore"
	pgdb "cinegate/pkg/db"
)

// Open connects to the configured backend and makes sure its schema exists.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (access.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverScylla:
		session, err := db.Connect(db.Config{
			Hosts:       cfg.Scylla.Hosts,
			Port:        cfg.Scylla.Port,
			Keyspace:    cfg.Scylla.Keyspace,
			Consistency: cfg.Scylla.Consistency,
			Replication: cfg.Scylla.Replication,
			Timeout:     5 * time.Second,
			Attempts:    20,
			RetryDelay:  5 * time.Second,
		}, log)
		if err != nil {
			return nil, err
		}
		log.Info().Strs("hosts", cfg.Scylla.Hosts).Str("keyspace", cfg.Scylla.Keyspace).Msg("scylla store ready")
		return db.NewStore(session, cfg.Scylla.Keyspace), nil

	case config.DriverPostgres:
		pool, err := pgdb.Connect(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		st := pgstore.New(pool)
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		log.Info().Msg("postgres store ready")
		return st, nil

	case config.DriverMemory:
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return memstore.New(), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
