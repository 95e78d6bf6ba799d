package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mevsgame/fitgd-sub006/cache"
	"github.com/mevsgame/fitgd-sub006/config"
	dbadapter "github.com/mevsgame/fitgd-sub006/db"
	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates an in-memory SQLite DB and runs AutoMigrate. Each test
// gets its own named memory database, so parallel tests never share state.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode:       dbadapter.ModeSQLite,
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}
