package gorm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewTestDB creates a migrated SQLite database in a per-test temp file.
// A file is used instead of :memory: so every pooled connection sees the same data.
func NewTestDB(t testing.TB) *gorm.DB {
	path := filepath.Join(t.TempDir(), "segload-test.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, AutoMigrate(db))

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}
