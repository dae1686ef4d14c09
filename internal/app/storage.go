package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nikola1125/ashila-backend/internal/domain"
	healthcheck "github.com/nikola1125/ashila-backend/internal/health"
	"github.com/nikola1125/ashila-backend/internal/storage/memory"
	"github.com/nikola1125/ashila-backend/internal/storage/mongo"
	"github.com/nikola1125/ashila-backend/internal/storage/postgres"
)

const storagePingTimeout = 2 * time.Second

// runtimeDependencies — хранилище, выбранное конфигурацией.
type runtimeDependencies struct {
	driver         string
	catalog        domain.CatalogRepository
	orders         domain.OrderRepository
	tx             domain.Transactor
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d runtimeDependencies) close(logger *log.Entry) {
	if d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
		return
	}
	logger.WithField("driver", d.driver).Info("storage closed")
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}

	switch driver {
	case StorageDriverMemory:
		store := memory.NewStore()
		logger.Warn("using in-memory storage, data is lost on restart")
		return runtimeDependencies{
			driver:         driver,
			catalog:        store,
			orders:         store,
			tx:             store,
			storageChecker: pingChecker(driver, store.Ping),
		}, nil

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return runtimeDependencies{}, errors.New("postgres dsn is required for postgres storage driver")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("postgres storage initialized")
		return runtimeDependencies{
			driver:         driver,
			catalog:        postgres.NewCatalogRepository(store),
			orders:         postgres.NewOrderRepository(store),
			tx:             store,
			storageChecker: pingChecker(driver, store.Ping),
			closeFn:        store.Close,
		}, nil

	case StorageDriverMongo:
		if strings.TrimSpace(cfg.MongoURI) == "" || strings.TrimSpace(cfg.MongoDatabase) == "" {
			return runtimeDependencies{}, errors.New("mongo uri and database are required for mongo storage driver")
		}
		store, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open mongo: %w", err)
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(context.Background())
			return runtimeDependencies{}, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		entry := logger.WithField("database", cfg.MongoDatabase)
		if ok, err := store.SupportsTransactions(ctx); err != nil {
			entry.WithError(err).Warn("could not detect mongo transaction support")
		} else if !ok {
			entry.Warn("mongo deployment is standalone, stock commits will fall back to best-effort")
		}
		entry.Info("mongo storage initialized")
		return runtimeDependencies{
			driver:         driver,
			catalog:        mongo.NewCatalogRepository(store),
			orders:         mongo.NewOrderRepository(store),
			tx:             store,
			storageChecker: pingChecker(driver, store.Ping),
			closeFn: func() error {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return store.Close(closeCtx)
			},
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func pingChecker(name string, ping func(ctx context.Context) error) healthcheck.Checker {
	return healthcheck.NewPingChecker("storage:"+name, storagePingTimeout, ping)
}
