package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uitgo/trip-service/internal/config"
	"github.com/uitgo/trip-service/internal/domain/trip"
	"github.com/uitgo/trip-service/internal/repository/memory"
	"github.com/uitgo/trip-service/internal/repository/mongodb"
	"github.com/uitgo/trip-service/internal/repository/postgres"
	"github.com/uitgo/trip-service/pkg/database"
	"github.com/uitgo/trip-service/pkg/logger"
)

// store is the opened trip store plus what main needs to report on and close it.
type store struct {
	repo  trip.Repository
	sqlDB *sql.DB // set for postgres only, for pool metrics
	close func(ctx context.Context) error
}

func openStore(ctx context.Context, cfg *config.Config, instrumented bool, log *logger.Logger) (*store, error) {
	switch cfg.Store.Driver {
	case config.StoreMongo:
		client, db, err := database.NewMongoDB(ctx, database.MongoConfig{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			MaxPoolSize:    uint64(cfg.Mongo.MaxPoolSize),
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
		})
		if err != nil {
			return nil, err
		}
		repo := mongodb.NewTripRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("ensure trip indexes: %w", err)
		}
		log.Info("Connected to MongoDB", logger.String("database", cfg.Mongo.Database))
		return &store{repo: repo, close: client.Disconnect}, nil

	case config.StorePostgres:
		db, err := database.NewPostgresDB(ctx, database.Config{
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			DBName:       cfg.Database.Name,
			SSLMode:      cfg.Database.SSLMode,
			MaxConns:     cfg.Database.MaxConnections,
			MaxIdle:      cfg.Database.MaxIdleConns,
			MaxLifetime:  cfg.Database.MaxLifetime,
			Instrumented: instrumented,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
		}
		log.Info("Connected to PostgreSQL", logger.String("database", cfg.Database.Name))
		return &store{
			repo:  postgres.NewTripRepository(db),
			sqlDB: db,
			close: func(context.Context) error { return db.Close() },
		}, nil

	case config.StoreMemory:
		log.Warn("Using in-memory trip store; data is lost on restart")
		return &store{
			repo:  memory.NewTripRepository(),
			close: func(context.Context) error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
