package database

import (
	"context"
	"fmt"
	"time"

	"procuretrack/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewConnection opens the pool, migrates the schema and applies the
// constraints AutoMigrate cannot express.
func NewConnection(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	logger.Info("database schema migrated")
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.BudgetAllocation{},
		&model.BudgetEntry{},
		&model.InventoryItem{},
		&model.StockMovement{},
		&model.Document{},
		&model.DocumentLink{},
		&model.AuditEntry{},
		&model.Delegation{},
		&model.ActivityLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return applyConstraints(db)
}

// constraints back the budget and stock invariants at the storage layer.
var constraints = []struct {
	table, name, check string
}{
	{"budget_allocations", "chk_budget_obligated_range", "obligated_amount >= 0 AND obligated_amount <= allocated_amount"},
	{"inventory_items", "chk_inventory_stock_non_negative", "stock_on_hand >= 0"},
	{"documents", "chk_documents_version_positive", "version >= 1"},
}

func applyConstraints(db *gorm.DB) error {
	for _, c := range constraints {
		stmt := fmt.Sprintf(`DO $$ BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN
		ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s);
	END IF;
END $$;`, c.name, c.table, c.name, c.check)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to add constraint %s: %w", c.name, err)
		}
	}
	return nil
}

// Ping is used by the health check.
func Ping(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
