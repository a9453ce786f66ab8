package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tunecrate/internal/models"
	"tunecrate/internal/utils"
)

// AlbumRepository handles album rows. Every write is scoped by owner.
type AlbumRepository struct {
	db *gorm.DB
}

// NewAlbumRepository creates a new album repository
func NewAlbumRepository(db *gorm.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

// WithTx returns a repository running its statements on tx
func (r *AlbumRepository) WithTx(tx *gorm.DB) *AlbumRepository {
	return &AlbumRepository{db: tx}
}

// nameTaken reports whether owner already has an album with this name,
// ignoring case. excludeID skips the album being renamed.
func (r *AlbumRepository) nameTaken(db *gorm.DB, owner uuid.UUID, name string, excludeID int64) (bool, error) {
	query := db.Model(&models.Album{}).
		Where("owner_id = ? AND name_normalized = ?", owner, models.NormalizeName(name))
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, translateDBError(err, "check album name", utils.KindNameAlreadyExists, utils.KindGeneric)
	}
	return count > 0, nil
}

// CreateAlbum inserts an album. The name must be unique among the owner's
// albums regardless of case.
func (r *AlbumRepository) CreateAlbum(ctx context.Context, name string, year int, artist string, imageRef *string, owner uuid.UUID) (*models.Album, error) {
	db := r.db.WithContext(ctx)

	taken, err := r.nameTaken(db, owner, name, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, utils.NewNameAlreadyExistsError(fmt.Sprintf("album %q already exists", name), nil)
	}

	album := &models.Album{
		Name:     name,
		Year:     year,
		Artist:   artist,
		ImageRef: imageRef,
		OwnerID:  owner,
	}
	if err := db.Create(album).Error; err != nil {
		return nil, translateDBError(err, "create album", utils.KindNameAlreadyExists, utils.KindNotFound)
	}
	return album, nil
}

// FindAlbumByID returns an album regardless of owner
func (r *AlbumRepository) FindAlbumByID(ctx context.Context, id int64) (*models.Album, error) {
	var album models.Album
	if err := r.db.WithContext(ctx).First(&album, id).Error; err != nil {
		return nil, translateDBError(err, fmt.Sprintf("find album %d", id), utils.KindGeneric, utils.KindGeneric)
	}
	return &album, nil
}

// FindAlbumsByOwner lists the owner's albums ordered by year, then name
func (r *AlbumRepository) FindAlbumsByOwner(ctx context.Context, owner uuid.UUID) ([]models.Album, error) {
	albums := []models.Album{}
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", owner).
		Order("year ASC").
		Order("name ASC").
		Find(&albums).Error
	if err != nil {
		return nil, translateDBError(err, "list albums", utils.KindGeneric, utils.KindGeneric)
	}
	return albums, nil
}

// FindAlbumByName finds one of the owner's albums by case-insensitive name
func (r *AlbumRepository) FindAlbumByName(ctx context.Context, owner uuid.UUID, name string) (*models.Album, error) {
	var album models.Album
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND name_normalized = ?", owner, models.NormalizeName(name)).
		First(&album).Error
	if err != nil {
		return nil, translateDBError(err, fmt.Sprintf("find album %q", name), utils.KindGeneric, utils.KindGeneric)
	}
	return &album, nil
}

// UpdateAlbum applies the non-nil fields of update in a single statement.
// An album that does not exist and one owned by someone else both report
// NOT_FOUND so callers cannot probe for other owners' albums.
func (r *AlbumRepository) UpdateAlbum(ctx context.Context, id int64, owner uuid.UUID, update models.AlbumUpdate) (*models.Album, error) {
	if update.IsEmpty() {
		return nil, utils.NewInvalidInputError("at least one album field must be updated", nil)
	}

	db := r.db.WithContext(ctx)
	columns := map[string]interface{}{}

	if update.Name != nil {
		taken, err := r.nameTaken(db, owner, *update.Name, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, utils.NewNameAlreadyExistsError(fmt.Sprintf("album %q already exists", *update.Name), nil)
		}
		columns["name"] = *update.Name
		columns["name_normalized"] = models.NormalizeName(*update.Name)
	}
	if update.Year != nil {
		columns["year"] = *update.Year
	}
	if update.Artist != nil {
		columns["artist"] = *update.Artist
	}
	if update.ImageRef != nil {
		columns["image_ref"] = *update.ImageRef
	}

	// UpdateColumns skips hooks; name_normalized is set explicitly above
	result := db.Model(&models.Album{}).
		Where("id = ? AND owner_id = ?", id, owner).
		UpdateColumns(columns)
	if result.Error != nil {
		return nil, translateDBError(result.Error, "update album", utils.KindNameAlreadyExists, utils.KindGeneric)
	}
	if result.RowsAffected == 0 {
		return nil, utils.NewNotFoundError(fmt.Sprintf("album %d not found", id), nil)
	}

	return r.FindAlbumByID(ctx, id)
}

// DeleteAlbum removes one of the owner's albums. Albums still referenced by
// songs cannot be deleted.
func (r *AlbumRepository) DeleteAlbum(ctx context.Context, id int64, owner uuid.UUID) error {
	db := r.db.WithContext(ctx)

	var songCount int64
	err := db.Model(&models.Song{}).
		Joins("JOIN albums ON albums.id = songs.album_id").
		Where("albums.id = ? AND albums.owner_id = ?", id, owner).
		Count(&songCount).Error
	if err != nil {
		return translateDBError(err, "count album songs", utils.KindGeneric, utils.KindGeneric)
	}
	if songCount > 0 {
		return utils.NewConstraintViolationError(fmt.Sprintf("album %d still has %d songs", id, songCount), nil)
	}

	result := db.Where("id = ? AND owner_id = ?", id, owner).Delete(&models.Album{})
	if result.Error != nil {
		return translateDBError(result.Error, "delete album", utils.KindGeneric, utils.KindConstraintViolation)
	}
	if result.RowsAffected == 0 {
		return utils.NewNotFoundError(fmt.Sprintf("album %d not found", id), nil)
	}
	return nil
}
