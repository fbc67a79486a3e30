// Package app builds the service graph for the configured storage driver.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/LandRegistry/internal/blob"
	"github.com/JonMunkholm/LandRegistry/internal/config"
	"github.com/JonMunkholm/LandRegistry/internal/core"
	"github.com/JonMunkholm/LandRegistry/internal/database"
	"github.com/JonMunkholm/LandRegistry/internal/recordset"
)

// App owns the stores and the service built on them.
type App struct {
	Service *core.Service

	pool *pgxpool.Pool
}

// New opens the stores named by cfg.Storage.Driver. The postgres driver
// connects, and migrates when cfg.Database.Migrate is set.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	var (
		blobs   core.BlobStore
		records core.RecordStore
		pool    *pgxpool.Pool
	)

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		var err error
		pool, err = database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := database.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			slog.Info("database schema applied")
		}
		blobs = blob.NewPostgresStore(pool, cfg.Storage.BlobChunkSize)
		records = recordset.NewPostgresStore(pool)

	case config.DriverMemory:
		mem := blob.NewMemoryStore(cfg.Storage.BlobChunkSize)
		blobs = mem
		records = recordset.NewMemoryStore(func(ctx context.Context, id string) bool {
			_, err := mem.Stat(ctx, id)
			return err == nil
		})
		slog.Warn("using in-memory storage; uploads are lost on restart")

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	return &App{
		Service: core.NewService(blobs, records, cfg.Upload),
		pool:    pool,
	}, nil
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
