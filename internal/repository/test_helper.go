package repository

import (
	"testing"

	"github.com/nimasrn/finance-ledger/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewTestDB opens a migrated in-memory sqlite database. Other packages use it
// to test against real repositories.
func NewTestDB(t testing.TB) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// :memory: is per connection
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(&TransactionEntity{}, &ReminderConfigEntity{}, &ReminderLogEntity{})
	require.NoError(t, err)

	return pg.Wrap(db, db)
}
