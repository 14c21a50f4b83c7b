// Package dbtest wires an isolated in-memory SQLite database and memory
// cache for tests, with every migration applied.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	_ "github.com/darcho/darcho/database/migrations"
	"github.com/darcho/darcho/pkg/cache"
	"github.com/darcho/darcho/pkg/database"
	"github.com/darcho/darcho/pkg/event"
	"github.com/darcho/darcho/pkg/migration"
	"github.com/darcho/darcho/pkg/queue"
)

// Setup installs a fresh database and cache as the process globals and
// clears event listeners. Tests using it must not run in parallel.
func Setup(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:dbtest_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open("sqlite", dsn)
	require.NoError(t, err)
	install(t, db)
	return db
}

// install migrates db and makes it the process database until the test ends.
func install(t testing.TB, db *gorm.DB) {
	t.Helper()
	_, err := migration.New(db).Run()
	require.NoError(t, err)

	prev := database.DB
	database.Use(db)
	cache.Use(cache.NewMemoryStore())
	queue.UseDB(db)
	event.Flush()

	t.Cleanup(func() {
		event.Flush()
		queue.UseDB(nil)
		database.Use(prev)
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
}
