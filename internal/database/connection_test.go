// internal/database/connection_test.go
package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/config"
	"github.com/javajoker/coopfund-backend/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Initialize(config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		LogLevel:   "silent",
	})
	require.NoError(t, err)
	require.NoError(t, RunMigrations(db))
	return db
}

func TestSeedIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	db := openTestDB(t)
	defer Close(db)

	opts := SeedOptions{
		AdminIdentity:   "dao-admin",
		AdminEmail:      "admin@coopfund.test",
		AdminPassword:   "Seed#Pass2025",
		TreasuryName:    "dao-pool",
		TreasuryBalance: 500,
	}
	require.NoError(t, SeedInitialData(db, opts))
	require.NoError(t, SeedInitialData(db, opts))

	var operators, treasuries int64
	require.NoError(t, db.Model(&models.Operator{}).Count(&operators).Error)
	require.NoError(t, db.Model(&models.TreasuryAccount{}).Count(&treasuries).Error)
	assert.EqualValues(t, 1, operators)
	assert.EqualValues(t, 1, treasuries)

	var admin models.Operator
	require.NoError(t, db.Where("identity = ?", "dao-admin").First(&admin).Error)
	assert.NoError(t, admin.CheckPassword("Seed#Pass2025"))
	assert.True(t, admin.HasCapability(models.CapabilitySystemAdmin))
}

func TestSeedGeneratesMissingPassword(t *testing.T) {
	db := openTestDB(t)
	defer Close(db)
	hook := logtest.NewGlobal()
	defer hook.Reset()

	require.NoError(t, SeedInitialData(db, SeedOptions{AdminIdentity: "dao-admin", AdminEmail: "admin@coopfund.test"}))

	var password string
	for _, entry := range hook.AllEntries() {
		if p, ok := entry.Data["password"].(string); ok {
			password = p
		}
	}
	require.Len(t, password, generatedPasswordLength)

	var admin models.Operator
	require.NoError(t, db.Where("identity = ?", "dao-admin").First(&admin).Error)
	assert.NoError(t, admin.CheckPassword(password))
}

func TestInTxReusesOuterTransaction(t *testing.T) {
	db := openTestDB(t)
	defer Close(db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := InTx(ctx, db, func(ctx context.Context, tx *gorm.DB) error {
		assert.Same(t, tx, Conn(ctx, db))

		inner := InTx(ctx, db, func(ctx context.Context, inner *gorm.DB) error {
			assert.Same(t, tx, inner)
			return inner.Create(&models.Batch{BatchID: "b-1", OwnerID: "coop"}).Error
		})
		require.NoError(t, inner)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// The inner write went down with the outer transaction.
	var count int64
	require.NoError(t, db.Model(&models.Batch{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestConnWithoutTransaction(t *testing.T) {
	db := openTestDB(t)
	defer Close(db)

	conn := Conn(context.Background(), db)
	require.NotNil(t, conn)
	assert.NoError(t, conn.Model(&models.Batch{}).Count(new(int64)).Error)
}

func TestWithTransactionRollsBackOnPanic(t *testing.T) {
	db := openTestDB(t)
	defer Close(db)

	assert.Panics(t, func() {
		_ = WithTransaction(db, func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&models.Batch{BatchID: "b-2", OwnerID: "coop"}).Error)
			panic("boom")
		})
	})

	var count int64
	require.NoError(t, db.Model(&models.Batch{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGormLogLevel(t *testing.T) {
	assert.NotEqual(t, gormLogLevel("silent"), gormLogLevel("info"))
	assert.Equal(t, gormLogLevel("warn"), gormLogLevel("anything"))
}
