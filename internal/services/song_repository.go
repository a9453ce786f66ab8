package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tunecrate/internal/models"
	"tunecrate/internal/utils"
)

// SongRepository handles song rows. Whether a song's owner matches its
// album's owner is left to callers.
type SongRepository struct {
	db *gorm.DB
}

// NewSongRepository creates a new song repository
func NewSongRepository(db *gorm.DB) *SongRepository {
	return &SongRepository{db: db}
}

// WithTx returns a repository running its statements on tx
func (r *SongRepository) WithTx(tx *gorm.DB) *SongRepository {
	return &SongRepository{db: tx}
}

// CreateSong inserts a song referencing an existing album
func (r *SongRepository) CreateSong(ctx context.Context, title string, albumID int64, year int, genre, audioRef string, owner uuid.UUID) (*models.Song, error) {
	db := r.db.WithContext(ctx)

	var albums int64
	if err := db.Model(&models.Album{}).Where("id = ?", albumID).Count(&albums).Error; err != nil {
		return nil, translateDBError(err, "check album", utils.KindGeneric, utils.KindGeneric)
	}
	if albums == 0 {
		return nil, utils.NewNotFoundError(fmt.Sprintf("album %d not found", albumID), nil)
	}

	song := &models.Song{
		Title:    title,
		AlbumID:  albumID,
		Year:     year,
		Genre:    genre,
		AudioRef: audioRef,
		OwnerID:  owner,
	}
	if err := db.Create(song).Error; err != nil {
		return nil, translateDBError(err, "create song", utils.KindDuplicateEntry, utils.KindNotFound)
	}
	return song, nil
}

// FindSongByID returns a song regardless of owner
func (r *SongRepository) FindSongByID(ctx context.Context, id int64) (*models.Song, error) {
	var song models.Song
	if err := r.db.WithContext(ctx).First(&song, id).Error; err != nil {
		return nil, translateDBError(err, fmt.Sprintf("find song %d", id), utils.KindGeneric, utils.KindGeneric)
	}
	return &song, nil
}

// FindSongsByOwner lists the owner's songs
func (r *SongRepository) FindSongsByOwner(ctx context.Context, owner uuid.UUID) ([]models.Song, error) {
	songs := []models.Song{}
	err := r.db.WithContext(ctx).Where("owner_id = ?", owner).Order("id ASC").Find(&songs).Error
	if err != nil {
		return nil, translateDBError(err, "list songs", utils.KindGeneric, utils.KindGeneric)
	}
	return songs, nil
}

// FindAllSongs lists every song
func (r *SongRepository) FindAllSongs(ctx context.Context) ([]models.Song, error) {
	songs := []models.Song{}
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&songs).Error; err != nil {
		return nil, translateDBError(err, "list songs", utils.KindGeneric, utils.KindGeneric)
	}
	return songs, nil
}

// FindSongsByIDsAndOwner returns the songs among ids that belong to owner.
// Ids that do not exist or belong to someone else are silently dropped.
func (r *SongRepository) FindSongsByIDsAndOwner(ctx context.Context, ids []int64, owner uuid.UUID) ([]models.Song, error) {
	songs := []models.Song{}
	if len(ids) == 0 {
		return songs, nil
	}

	err := r.db.WithContext(ctx).
		Where("id IN ? AND owner_id = ?", ids, owner).
		Order("id ASC").
		Find(&songs).Error
	if err != nil {
		return nil, translateDBError(err, "find songs", utils.KindGeneric, utils.KindGeneric)
	}
	return songs, nil
}

// FindSongsWithAlbumByOwner returns the owner's songs joined with their albums
func (r *SongRepository) FindSongsWithAlbumByOwner(ctx context.Context, owner uuid.UUID) ([]models.SongWithAlbum, error) {
	var songs []models.Song
	err := r.db.WithContext(ctx).
		Preload("Album").
		Where("owner_id = ?", owner).
		Order("id ASC").
		Find(&songs).Error
	if err != nil {
		return nil, translateDBError(err, "list songs with albums", utils.KindGeneric, utils.KindGeneric)
	}

	result := make([]models.SongWithAlbum, 0, len(songs))
	for _, song := range songs {
		item := models.SongWithAlbum{Song: song}
		if song.Album != nil {
			item.Album = *song.Album
			item.Song.Album = nil
		}
		result = append(result, item)
	}
	return result, nil
}

// DeleteSong removes a song; its playlist memberships go with it
func (r *SongRepository) DeleteSong(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.Song{}, id)
	if result.Error != nil {
		return translateDBError(result.Error, "delete song", utils.KindGeneric, utils.KindConstraintViolation)
	}
	if result.RowsAffected == 0 {
		return utils.NewNotFoundError(fmt.Sprintf("song %d not found", id), nil)
	}
	return nil
}
