package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	billingdomain "github.com/smallbiznis/quotaguard/internal/billing/domain"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
	orderdomain "github.com/smallbiznis/quotaguard/internal/order/domain"
	productdomain "github.com/smallbiznis/quotaguard/internal/product/domain"
	quotadomain "github.com/smallbiznis/quotaguard/internal/quota/domain"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// Models lists every table owned by the engine, in dependency order.
func Models() []any {
	return []any{
		&customerdomain.Customer{},
		&productdomain.Product{},
		&quotadomain.DailyQuota{},
		&quotadomain.Consumption{},
		&quotadomain.Warning{},
		&billingdomain.Transaction{},
		&billingdomain.TransactionItem{},
		&billingdomain.ReceiptSequence{},
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&auditdomain.AuditLog{},
	}
}

// Run brings the schema up to date. PostgreSQL uses the versioned SQL
// migrations; SQLite and MySQL are migrated from the gorm models.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

// RunMigrations applies the embedded PostgreSQL migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
