package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/everkeep/internal/database"
)

var dbCounter atomic.Int64

// MustOpenTestDB opens an isolated in-memory SQLite database for tests with
// the full schema applied. The connection is closed automatically via t.Cleanup.
func MustOpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named memory database keeps tests in one process from sharing state.
	dsn := fmt.Sprintf("file:everkeep_test_%d?mode=memory&cache=shared&_foreign_keys=1", dbCounter.Add(1))
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)

	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
