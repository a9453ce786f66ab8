package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tunecrate/internal/config"
	"tunecrate/internal/database"
	"tunecrate/internal/models"
	"tunecrate/internal/test"
)

func countAlbums(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Album{}).Count(&n).Error)
	return n
}

func newAlbum(name string) *models.Album {
	return &models.Album{Name: name, Year: 1967, Artist: "The Beatles", OwnerID: uuid.New()}
}

func TestWithTransaction_Commits(t *testing.T) {
	db := test.GetTestDB(t)

	err := database.WithTransaction(context.Background(), db, func(tx *gorm.DB) error {
		return tx.Create(newAlbum("Sgt. Pepper")).Error
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countAlbums(t, db))
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := test.GetTestDB(t)
	boom := errors.New("boom")

	err := database.WithTransaction(context.Background(), db, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(newAlbum("Magical Mystery Tour")).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, countAlbums(t, db))
}

func TestWithTransaction_RollsBackOnPanic(t *testing.T) {
	db := test.GetTestDB(t)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = database.WithTransaction(context.Background(), db, func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(newAlbum("The White Album")).Error)
			panic("kaboom")
		})
	})
	assert.Zero(t, countAlbums(t, db))

	// The single pooled connection is usable again
	require.NoError(t, db.Create(newAlbum("Yellow Submarine")).Error)
}

func TestWithSavepoint_UndoesOnlyItsOwnWork(t *testing.T) {
	db := test.GetTestDB(t)
	boom := errors.New("boom")

	err := database.WithTransaction(context.Background(), db, func(tx *gorm.DB) error {
		if err := tx.Create(newAlbum("Kept")).Error; err != nil {
			return err
		}

		spErr := database.WithSavepoint(tx, "sp_1", func(tx *gorm.DB) error {
			if err := tx.Create(newAlbum("Discarded")).Error; err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, spErr, boom)

		return database.WithSavepoint(tx, "sp_2", func(tx *gorm.DB) error {
			return tx.Create(newAlbum("Also kept")).Error
		})
	})
	require.NoError(t, err)

	var names []string
	require.NoError(t, db.Model(&models.Album{}).Order("name").Pluck("name", &names).Error)
	assert.Equal(t, []string{"Also kept", "Kept"}, names)
}

func TestDialector(t *testing.T) {
	pg, err := database.Dialector(&config.DatabaseConfig{Driver: config.DriverPostgres, Host: "db", Port: 5432})
	require.NoError(t, err)
	assert.Equal(t, "postgres", pg.Name())

	lite, err := database.Dialector(&config.DatabaseConfig{Driver: config.DriverSQLite, Path: "catalog.db"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", lite.Name())

	_, err = database.Dialector(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)

	assert.Equal(t, "file:catalog.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", database.BuildSQLiteDSN("catalog.db"))
}

func TestDatabaseManager_SQLiteFile(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "catalog.db"),
	}

	manager, err := database.NewDatabaseManager(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	require.NoError(t, manager.Ping(context.Background()))
	require.NoError(t, database.NewMigrationManager(manager.GetGormDB(), nil).Migrate())
	assert.True(t, manager.GetGormDB().Migrator().HasTable(&models.PlaylistSong{}))
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := database.NewRedisClient(context.Background(), config.RedisConfig{
		Address:  mr.Addr(),
		PoolSize: 2,
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = database.NewRedisClient(context.Background(), config.RedisConfig{
		Address: "127.0.0.1:1",
		Timeout: 100 * time.Millisecond,
	})
	assert.Error(t, err)
}
