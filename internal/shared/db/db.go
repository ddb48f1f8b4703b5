package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/venkatram-2005/Quick-Share/configs"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
	"gorm.io/plugin/opentelemetry/tracing"
)

type Store struct{ Base *gorm.DB }

// Open connects to Postgres, retrying with backoff while the database comes
// up, and registers read replicas and tracing when configured.
func Open(ctx context.Context, cfg *configs.Config, log *slog.Logger) (*Store, error) {
	base, err := openWithRetry(ctx, cfg.DSN(), 8, 2*time.Second, log)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	sqlDB, err := base.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(40)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if len(cfg.DBReadReplicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(cfg.DBReadReplicas))
		for _, dsn := range cfg.DBReadReplicas {
			replicas = append(replicas, postgres.Open(dsn))
		}
		if err := base.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		})); err != nil {
			return nil, fmt.Errorf("dbresolver: %w", err)
		}
		log.Info("read replicas registered", "count", len(replicas))
	}
	if cfg.OTELEnabled {
		if err := base.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("gorm tracing: %w", err)
		}
	}
	return &Store{Base: base}, nil
}

// Primary forces the next statement onto the writer so a read that must
// observe the caller's own commit is not served by a lagging replica.
func (s *Store) Primary(ctx context.Context) *gorm.DB {
	return s.Base.WithContext(ctx).Clauses(dbresolver.Write)
}

func (s *Store) Close() error {
	sqlDB, err := s.Base.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func openWithRetry(ctx context.Context, dsn string, attempts int, sleep time.Duration, log *slog.Logger) (*gorm.DB, error) {
	var last error
	for i := 1; i <= attempts; i++ {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Warn),
			TranslateError: true,
		})
		if err == nil {
			s, e := db.DB()
			if e == nil {
				pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
				e = s.PingContext(pctx)
				cancel()
				if e == nil {
					return db, nil
				}
			}
			last = e
		} else {
			last = err
		}
		log.Warn("db connect attempt failed", "attempt", i, "of", attempts, "error", last)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
		if sleep < 8*time.Second {
			sleep *= 2
		}
	}
	return nil, last
}
