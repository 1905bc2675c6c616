// Package factory builds the service dependencies from config: store,
// Graph client, and insight provider.
package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/attendly/attendly/server/internal/config"
	storepkg "github.com/attendly/attendly/server/internal/store"
	storepg "github.com/attendly/attendly/server/internal/store/postgres"
	storesq "github.com/attendly/attendly/server/internal/store/sqlite"
)

// NewStore returns a store.Store for the configured driver. SQLite creates
// its schema inline; Postgres is verified with an async bootstrap ping so
// startup is not blocked on a slow database.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		db, err := storesq.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := storesq.EnsureSchema(db); err != nil {
			return nil, err
		}
		log.Debug().Str("path", cfg.SQLitePath).Msg("sqlite store ready")
		return storesq.NewWithDB(db), nil

	case "postgres":
		dsn := cfg.PostgresDSN
		if dsn == "" {
			return nil, fmt.Errorf("MEETING_AGENT_POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
		db, err := storepg.Open(dsn)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := storepg.Bootstrap(ctx, dsn); err != nil {
				log.Warn().Err(err).Msg("store bootstrap check failed")
			} else {
				log.Debug().Msg("store bootstrap check completed")
			}
		}()
		return storepg.NewWithDB(db), nil

	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}
