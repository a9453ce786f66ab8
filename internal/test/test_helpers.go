package test

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tunecrate/internal/config"
	"tunecrate/internal/database"
	"tunecrate/internal/models"
)

// GetTestDB creates an isolated in-memory SQLite database with the catalog
// schema migrated and foreign keys enforced. The pool is pinned to a single
// connection so the in-memory database lives as long as the test.
func GetTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:tunecrate_%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.NewMigrationManager(db, nil).Migrate())

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

// GetTestStorageConfig returns storage settings rooted in a fresh temp dir
func GetTestStorageConfig(t *testing.T) config.StorageConfig {
	t.Helper()

	cfg := config.StorageConfig{
		Root:              t.TempDir(),
		AudioDir:          "audio",
		ImageDir:          "image",
		OrderDir:          "playlist_orders",
		MaxAudioBytes:     10 << 20,
		MaxImageBytes:     2 << 20,
		MaxBaseNameLength: 64,
		VerifyStructure:   true,
		MaxImageWidth:     4096,
		MaxImageHeight:    4096,
		MaxImagePixels:    16 << 20,
	}
	for _, dir := range []string{cfg.AudioRoot(), cfg.ImageRoot(), cfg.OrderRoot()} {
		require.NoError(t, os.MkdirAll(dir, 0755))
	}
	return cfg
}

// WAVBytes builds a short mono 16-bit PCM WAV file
func WAVBytes(t *testing.T) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           make([]int, 800),
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = (i % 64) * 256
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// PNGBytes builds a small PNG image
func PNGBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// CreateTestAlbum inserts an album directly, bypassing the repository
func CreateTestAlbum(t *testing.T, db *gorm.DB, owner uuid.UUID, name string, year int) *models.Album {
	t.Helper()

	album := &models.Album{
		Name:    name,
		Year:    year,
		Artist:  "Test Artist",
		OwnerID: owner,
	}
	require.NoError(t, db.Create(album).Error)
	return album
}

// CreateTestSong inserts a song directly, bypassing the repository
func CreateTestSong(t *testing.T, db *gorm.DB, owner uuid.UUID, albumID int64, title string) *models.Song {
	t.Helper()

	song := &models.Song{
		Title:    title,
		AlbumID:  albumID,
		Year:     2000,
		Genre:    "Rock",
		AudioRef: uuid.NewString() + "_" + title + ".mp3",
		OwnerID:  owner,
	}
	require.NoError(t, db.Create(song).Error)
	return song
}
