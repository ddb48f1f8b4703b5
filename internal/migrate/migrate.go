package migrate

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratePostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/venkatram-2005/Quick-Share/internal/attachment"
	"github.com/venkatram-2005/Quick-Share/internal/room"
	"github.com/venkatram-2005/Quick-Share/internal/shared/db"
)

//go:embed sql/*.sql
var migrations embed.FS

// Up applies the embedded SQL migrations over one connection borrowed from
// the store's pool. The pool itself stays open.
func Up(ctx context.Context, store *db.Store, log *slog.Logger) error {
	sqlDB, err := store.Base.DB()
	if err != nil {
		return fmt.Errorf("migrate pool: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migrate conn: %w", err)
	}
	driver, err := migratePostgres.WithConnection(ctx, conn, &migratePostgres.Config{})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("migrate driver: %w", err)
	}
	src, err := iofs.New(migrations, "sql")
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	version, dirty, _ := m.Version()
	log.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}

// AutoMigrateAll lets gorm reconcile the tables with the models. Used in
// development when AUTO_MIGRATE is set.
func AutoMigrateAll(store *db.Store) error {
	return store.Base.AutoMigrate(
		&room.Room{},
		&attachment.Attachment{},
	)
}
