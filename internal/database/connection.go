// internal/database/connection.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/coopfund-backend/internal/config"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	// Connect to database
	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool. SQLite serializes writers, one connection
	// keeps transactions from tripping over each other.
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)
	}

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithField("driver", cfg.Driver).Info("Database connection established")
	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed")
	}
}

// Models lists every table owned by the service.
func Models() []interface{} {
	return []interface{}{
		&models.Operator{},
		&models.GreenfieldProject{},
		&models.Grant{},
		&models.Loan{},
		&models.DisbursementSchedule{},
		&models.Milestone{},
		&models.Proof{},
		&models.CircuitDescriptor{},
		&models.CommodityQuote{},
		&models.BatchPricing{},
		&models.Batch{},
		&models.TreasuryAccount{},
		&models.CustodyTransfer{},
		&models.AdminSettings{},
		&models.AuditLog{},
		&models.LedgerEvent{},
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		if err := createIndexes(db); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_grants_coop_status ON grants(cooperative_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_grants_created_at ON grants(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_loans_borrower_status ON loans(borrower_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_loans_created_at ON loans(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_proofs_backend_status ON proofs(backend_type, status)",
		"CREATE INDEX IF NOT EXISTS idx_proofs_submitted_at ON proofs(submitted_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_ledger_events_entity ON ledger_events(entity_type, entity_id, occurred_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_identity_action ON audit_logs(identity, action)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// SeedOptions controls the initial data written by SeedInitialData.
type SeedOptions struct {
	AdminIdentity   string
	AdminEmail      string
	AdminPassword   string
	TreasuryName    string
	TreasuryBalance int64
}

const generatedPasswordLength = 24

// SeedInitialData creates the admin operator and treasury account when they
// are missing. An empty AdminPassword gets a random one, logged once.
func SeedInitialData(db *gorm.DB, opts SeedOptions) error {
	logrus.Info("Seeding initial data...")

	var adminCount int64
	if err := db.Model(&models.Operator{}).Where("identity = ?", opts.AdminIdentity).Count(&adminCount).Error; err != nil {
		return fmt.Errorf("failed to count operators: %w", err)
	}

	if adminCount == 0 {
		caps := make(models.StringList, 0, len(models.AllCapabilities()))
		for _, c := range models.AllCapabilities() {
			caps = append(caps, string(c))
		}
		admin := &models.Operator{
			Identity:     opts.AdminIdentity,
			Email:        opts.AdminEmail,
			DisplayName:  "System Administrator",
			Capabilities: caps,
			Status:       models.OperatorStatusActive,
		}

		password := opts.AdminPassword
		if password == "" {
			generated, err := utils.GenerateRandomString(generatedPasswordLength)
			if err != nil {
				return fmt.Errorf("failed to generate admin password: %w", err)
			}
			password = generated
			logrus.WithFields(logrus.Fields{
				"identity": opts.AdminIdentity,
				"password": password,
			}).Warn("Generated admin password, change it after first login")
		}

		if err := admin.SetPassword(password); err != nil {
			return fmt.Errorf("failed to set admin password: %w", err)
		}

		if err := db.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create admin operator: %w", err)
		}

		logrus.WithField("identity", admin.Identity).Info("Default admin operator created")
	}

	if opts.TreasuryName != "" {
		var treasury models.TreasuryAccount
		err := db.Where("name = ?", opts.TreasuryName).First(&treasury).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			treasury = models.TreasuryAccount{Name: opts.TreasuryName, Balance: opts.TreasuryBalance}
			if err := db.Create(&treasury).Error; err != nil {
				return fmt.Errorf("failed to create treasury account: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to load treasury account: %w", err)
		}
	}

	logrus.Info("Initial data seeding completed")
	return nil
}

type txKey struct{}

// ContextWithTx makes tx visible to collaborators called inside a transaction.
func ContextWithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Conn returns the transaction carried by ctx, or db when there is none.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// InTx runs fn in a transaction, reusing the one already carried by ctx.
func InTx(ctx context.Context, db *gorm.DB, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return fn(ctx, tx)
	}
	return WithTransaction(db.WithContext(ctx), func(tx *gorm.DB) error {
		return fn(ContextWithTx(ctx, tx), tx)
	})
}
