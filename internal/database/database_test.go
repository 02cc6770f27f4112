package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mantonx/tunecast/internal/config"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&PlayHistory{}))
	return db
}

func TestInitializeSQLite(t *testing.T) {
	cfg := config.DatabaseConfig{
		Type:         "sqlite",
		DatabasePath: t.TempDir() + "/test.db",
	}

	db, err := Initialize(cfg, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NotNil(t, db)

	// Schema must exist after Initialize.
	assert.True(t, db.Migrator().HasTable(&PlayHistory{}))
}

func TestInitializeUnsupportedType(t *testing.T) {
	_, err := Initialize(config.DatabaseConfig{Type: "oracle"}, hclog.NewNullLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestHistoryRecordAndRecent(t *testing.T) {
	store := NewHistoryStore(setupTestDB(t))

	require.NoError(t, store.Record("Living Room", "aaaaaaaaaaa", "First Song", "Artist A"))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.Record("Living Room", "bbbbbbbbbbb", "Second Song", "Artist B"))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.Record("Kitchen", "ccccccccccc", "Third Song", ""))

	entries, err := store.Recent(HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "ccccccccccc", entries[0].VideoID)
	assert.Equal(t, "aaaaaaaaaaa", entries[2].VideoID)
}

func TestHistoryFilterByTarget(t *testing.T) {
	store := NewHistoryStore(setupTestDB(t))

	require.NoError(t, store.Record("Living Room", "aaaaaaaaaaa", "First Song", ""))
	require.NoError(t, store.Record("Kitchen", "bbbbbbbbbbb", "Second Song", ""))

	entries, err := store.Recent(HistoryFilter{Target: "Kitchen"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bbbbbbbbbbb", entries[0].VideoID)
}

func TestHistoryLimitAndOffset(t *testing.T) {
	store := NewHistoryStore(setupTestDB(t))

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record("Living Room", "aaaaaaaaaaa", "Song", ""))
		time.Sleep(time.Millisecond)
	}

	entries, err := store.Recent(HistoryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.Recent(HistoryFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHistoryRecordError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO \"play_histories\"").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	store := NewHistoryStore(db)
	err = store.Record("Living Room", "aaaaaaaaaaa", "Song", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record playback")
	assert.NoError(t, mock.ExpectationsWereMet())
}
